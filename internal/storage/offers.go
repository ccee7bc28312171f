package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/jmoiron/sqlx"
)

type offerRow struct {
	SellerID        string   `db:"seller_id"`
	SellerName      string   `db:"seller_name"`
	Price           float64  `db:"price"`
	PriceMinusBonus *float64 `db:"price_minus_bonus"`
	SellerRating    *float64 `db:"seller_rating"`
	SellerReviews   *int     `db:"seller_reviews"`
	RankInSample    *int     `db:"rank_in_sample"`
	InStock         *bool    `db:"in_stock"`
	PurchaseCount   int      `db:"purchase_count"`
	DeliveryType    string   `db:"delivery_type"`
}

func (r offerRow) model() model.Offer {
	return model.Offer{
		Price:           r.Price,
		SellerID:        r.SellerID,
		SellerName:      r.SellerName,
		SellerRating:    r.SellerRating,
		SellerReviews:   r.SellerReviews,
		RankInSample:    r.RankInSample,
		InStock:         r.InStock,
		PriceMinusBonus: r.PriceMinusBonus,
		PurchaseCount:   r.PurchaseCount,
		DeliveryType:    r.DeliveryType,
	}
}

type historyRow struct {
	ProductID    string  `db:"product_id"`
	SellerName   string  `db:"seller_name"`
	Price        float64 `db:"price"`
	RankInSample *int    `db:"rank_in_sample"`
	RecordedAt   string  `db:"recorded_at"`
}

func (r historyRow) model() (model.PriceHistoryRecord, error) {
	at, err := parseTime(r.RecordedAt)
	if err != nil {
		return model.PriceHistoryRecord{}, err
	}
	return model.PriceHistoryRecord{
		ProductID:    r.ProductID,
		SellerName:   r.SellerName,
		Price:        r.Price,
		RankInSample: r.RankInSample,
		RecordedAt:   at,
	}, nil
}

// ReplaceOffers swaps the current offers of a product for a new scrape and
// appends every priced offer to the price history, all in one transaction.
func (s *Store) ReplaceOffers(ctx context.Context, productID string, offers []model.Offer, scrapedAt time.Time) error {
	at := formatTime(scrapedAt)
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM offers WHERE product_id = ?`), productID); err != nil {
			return fmt.Errorf("clear offers of %s: %w", productID, err)
		}

		insertOffer := s.q(`
INSERT INTO offers (id, product_id, seller_id, seller_name, price, price_minus_bonus, seller_rating,
  seller_reviews, rank_in_sample, in_stock, purchase_count, delivery_type, scraped_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		insertHistory := s.q(`
INSERT INTO price_history (id, product_id, seller_name, price, rank_in_sample, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`)

		for _, o := range offers {
			if _, err := tx.ExecContext(ctx, insertOffer,
				uuid.NewString(), productID, o.SellerID, o.SellerName, o.Price, o.PriceMinusBonus, o.SellerRating,
				o.SellerReviews, o.RankInSample, o.InStock, o.PurchaseCount, o.DeliveryType, at); err != nil {
				return fmt.Errorf("insert offer for %s: %w", productID, err)
			}
			if !o.HasPrice() {
				continue
			}
			if _, err := tx.ExecContext(ctx, insertHistory,
				uuid.NewString(), productID, o.SellerName, o.Price, o.RankInSample, at); err != nil {
				return fmt.Errorf("append price history for %s: %w", productID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, s.q(`UPDATE products SET updated_at = ? WHERE id = ?`), at, productID); err != nil {
			return fmt.Errorf("touch product %s: %w", productID, err)
		}
		return nil
	})
}

// ListOffers returns the offers of the latest scrape in rank order.
func (s *Store) ListOffers(ctx context.Context, productID string) ([]model.Offer, error) {
	var rows []offerRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
SELECT seller_id, seller_name, price, price_minus_bonus, seller_rating, seller_reviews,
  rank_in_sample, in_stock, purchase_count, delivery_type
FROM offers
WHERE product_id = ?
ORDER BY rank_in_sample, price`), productID)
	if err != nil {
		return nil, fmt.Errorf("list offers of %s: %w", productID, err)
	}

	offers := make([]model.Offer, 0, len(rows))
	for _, r := range rows {
		offers = append(offers, r.model())
	}
	return offers, nil
}

// PriceHistory returns the history of a product recorded at or after since,
// oldest first. A zero since returns everything.
func (s *Store) PriceHistory(ctx context.Context, productID string, since time.Time) ([]model.PriceHistoryRecord, error) {
	return s.history(ctx, `
SELECT product_id, seller_name, price, rank_in_sample, recorded_at
FROM price_history
WHERE product_id = ? AND recorded_at >= ?
ORDER BY recorded_at, rank_in_sample`, productID, formatTime(since))
}

// HistoryOn returns the history recorded during the UTC day of date.
func (s *Store) HistoryOn(ctx context.Context, productID string, date time.Time) ([]model.PriceHistoryRecord, error) {
	day := Day(date)
	return s.history(ctx, `
SELECT product_id, seller_name, price, rank_in_sample, recorded_at
FROM price_history
WHERE product_id = ? AND recorded_at >= ? AND recorded_at < ?
ORDER BY recorded_at, rank_in_sample`, productID, formatTime(day), formatTime(day.AddDate(0, 0, 1)))
}

func (s *Store) history(ctx context.Context, query string, args ...interface{}) ([]model.PriceHistoryRecord, error) {
	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}

	records := make([]model.PriceHistoryRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.model()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// HistoryDates lists the distinct UTC days with recorded history, oldest first.
func (s *Store) HistoryDates(ctx context.Context, productID string) ([]time.Time, error) {
	var days []string
	err := s.db.SelectContext(ctx, &days, s.q(`
SELECT DISTINCT SUBSTR(recorded_at, 1, 10) AS day
FROM price_history
WHERE product_id = ?
ORDER BY day`), productID)
	if err != nil {
		return nil, fmt.Errorf("list history dates of %s: %w", productID, err)
	}

	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		t, err := parseDate(d)
		if err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	return dates, nil
}
