package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Timestamps are stored as fixed-width UTC text so that ordering and range
// queries behave the same on both drivers.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

// Store persists products, offers, price history and daily rollups.
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; concurrent sqlite writers fail with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
  id          TEXT PRIMARY KEY,
  external_id TEXT NOT NULL UNIQUE,
  name        TEXT NOT NULL,
  category    TEXT NOT NULL DEFAULT '',
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS offers (
  id                TEXT PRIMARY KEY,
  product_id        TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  seller_id         TEXT NOT NULL DEFAULT '',
  seller_name       TEXT NOT NULL,
  price             DOUBLE PRECISION NOT NULL,
  price_minus_bonus DOUBLE PRECISION,
  seller_rating     DOUBLE PRECISION,
  seller_reviews    INTEGER,
  rank_in_sample    INTEGER,
  in_stock          BOOLEAN,
  purchase_count    INTEGER NOT NULL DEFAULT 0,
  delivery_type     TEXT NOT NULL DEFAULT '',
  scraped_at        TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_product ON offers(product_id)`,
	`CREATE TABLE IF NOT EXISTS price_history (
  id             TEXT PRIMARY KEY,
  product_id     TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  seller_name    TEXT NOT NULL,
  price          DOUBLE PRECISION NOT NULL,
  rank_in_sample INTEGER,
  recorded_at    TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_price_history_product_time ON price_history(product_id, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS analytics_daily (
  product_id              TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  date                    TEXT NOT NULL,
  min_price               DOUBLE PRECISION,
  max_price               DOUBLE PRECISION,
  avg_price               DOUBLE PRECISION,
  median_price            DOUBLE PRECISION,
  price_std               DOUBLE PRECISION,
  offers_count            INTEGER NOT NULL DEFAULT 0,
  sellers_count           INTEGER NOT NULL DEFAULT 0,
  top_sellers_count       INTEGER NOT NULL DEFAULT 0,
  estimated_total_sellers INTEGER NOT NULL DEFAULT 0,
  price_position_1        DOUBLE PRECISION,
  price_position_3        DOUBLE PRECISION,
  price_position_5        DOUBLE PRECISION,
  price_position_10       DOUBLE PRECISION,
  avg_seller_rating       DOUBLE PRECISION,
  in_stock_count          INTEGER NOT NULL DEFAULT 0,
  delta_price             DOUBLE PRECISION,
  delta_percent           DOUBLE PRECISION,
  sellers_delta           INTEGER NOT NULL DEFAULT 0,
  updated_at              TEXT NOT NULL,
  PRIMARY KEY (product_id, date)
)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// q rewrites '?' placeholders for the active driver.
func (s *Store) q(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return t, nil
}
