package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/jmoiron/sqlx"
)

type productRow struct {
	ID         string `db:"id"`
	ExternalID string `db:"external_id"`
	Name       string `db:"name"`
	Category   string `db:"category"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (r productRow) model() (model.Product, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Product{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return model.Product{}, err
	}
	return model.Product{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Name:       r.Name,
		Category:   r.Category,
		CreatedAt:  created,
		UpdatedAt:  updated,
	}, nil
}

const productColumns = `id, external_id, name, category, created_at, updated_at`

// UpsertProduct inserts a product keyed by its marketplace id, or refreshes
// the name and category of the existing row. An empty category never
// overwrites a known one.
func (s *Store) UpsertProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return model.Product{}, fmt.Errorf("upsert product: external id is required")
	}
	now := formatTime(s.now())
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO products (id, external_id, name, category, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (external_id) DO UPDATE SET
  name = excluded.name,
  category = CASE WHEN excluded.category = '' THEN products.category ELSE excluded.category END,
  updated_at = excluded.updated_at`),
		id, p.ExternalID, p.Name, p.Category, now, now)
	if err != nil {
		return model.Product{}, fmt.Errorf("upsert product %s: %w", p.ExternalID, err)
	}
	return s.GetProductByExternalID(ctx, p.ExternalID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (model.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (s *Store) GetProductByExternalID(ctx context.Context, externalID string) (model.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE external_id = ?`, externalID)
}

// ResolveProduct accepts either the internal id or the marketplace id.
func (s *Store) ResolveProduct(ctx context.Context, ref string) (model.Product, error) {
	p, err := s.GetProductByExternalID(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return s.GetProduct(ctx, ref)
	}
	return p, err
}

func (s *Store) getProduct(ctx context.Context, query, arg string) (model.Product, error) {
	var row productRow
	if err := s.db.GetContext(ctx, &row, s.q(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Product{}, fmt.Errorf("product %s: %w", arg, ErrNotFound)
		}
		return model.Product{}, fmt.Errorf("get product %s: %w", arg, err)
	}
	return row.model()
}

func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+productColumns+` FROM products ORDER BY created_at, external_id`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	products := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.model()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// DeleteProduct removes a product with its offers, history and rollups.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"analytics_daily", "price_history", "offers"} {
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE product_id = ?`), id); err != nil {
				return fmt.Errorf("delete %s of %s: %w", table, id, err)
			}
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM products WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete product %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
