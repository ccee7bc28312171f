package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guarzo/pricepos/internal/model"
)

type dailyRow struct {
	ProductID             string   `db:"product_id"`
	Date                  string   `db:"date"`
	MinPrice              *float64 `db:"min_price"`
	MaxPrice              *float64 `db:"max_price"`
	AvgPrice              *float64 `db:"avg_price"`
	MedianPrice           *float64 `db:"median_price"`
	PriceStd              *float64 `db:"price_std"`
	OffersCount           int      `db:"offers_count"`
	SellersCount          int      `db:"sellers_count"`
	TopSellersCount       int      `db:"top_sellers_count"`
	EstimatedTotalSellers int      `db:"estimated_total_sellers"`
	PricePosition1        *float64 `db:"price_position_1"`
	PricePosition3        *float64 `db:"price_position_3"`
	PricePosition5        *float64 `db:"price_position_5"`
	PricePosition10       *float64 `db:"price_position_10"`
	AvgSellerRating       *float64 `db:"avg_seller_rating"`
	InStockCount          int      `db:"in_stock_count"`
	DeltaPrice            *float64 `db:"delta_price"`
	DeltaPercent          *float64 `db:"delta_percent"`
	SellersDelta          int      `db:"sellers_delta"`
	UpdatedAt             string   `db:"updated_at"`
}

func (r dailyRow) model() (model.AnalyticsDailyRecord, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return model.AnalyticsDailyRecord{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return model.AnalyticsDailyRecord{}, err
	}
	return model.AnalyticsDailyRecord{
		ProductID:             r.ProductID,
		Date:                  date,
		MinPrice:              r.MinPrice,
		MaxPrice:              r.MaxPrice,
		AvgPrice:              r.AvgPrice,
		MedianPrice:           r.MedianPrice,
		PriceStd:              r.PriceStd,
		OffersCount:           r.OffersCount,
		SellersCount:          r.SellersCount,
		TopSellersCount:       r.TopSellersCount,
		EstimatedTotalSellers: r.EstimatedTotalSellers,
		PricePosition1:        r.PricePosition1,
		PricePosition3:        r.PricePosition3,
		PricePosition5:        r.PricePosition5,
		PricePosition10:       r.PricePosition10,
		AvgSellerRating:       r.AvgSellerRating,
		InStockCount:          r.InStockCount,
		DeltaPrice:            r.DeltaPrice,
		DeltaPercent:          r.DeltaPercent,
		SellersDelta:          r.SellersDelta,
		UpdatedAt:             updated,
	}, nil
}

func rowFromDaily(rec model.AnalyticsDailyRecord, updatedAt time.Time) dailyRow {
	return dailyRow{
		ProductID:             rec.ProductID,
		Date:                  formatDate(rec.Date),
		MinPrice:              rec.MinPrice,
		MaxPrice:              rec.MaxPrice,
		AvgPrice:              rec.AvgPrice,
		MedianPrice:           rec.MedianPrice,
		PriceStd:              rec.PriceStd,
		OffersCount:           rec.OffersCount,
		SellersCount:          rec.SellersCount,
		TopSellersCount:       rec.TopSellersCount,
		EstimatedTotalSellers: rec.EstimatedTotalSellers,
		PricePosition1:        rec.PricePosition1,
		PricePosition3:        rec.PricePosition3,
		PricePosition5:        rec.PricePosition5,
		PricePosition10:       rec.PricePosition10,
		AvgSellerRating:       rec.AvgSellerRating,
		InStockCount:          rec.InStockCount,
		DeltaPrice:            rec.DeltaPrice,
		DeltaPercent:          rec.DeltaPercent,
		SellersDelta:          rec.SellersDelta,
		UpdatedAt:             formatTime(updatedAt),
	}
}

const dailyColumns = `product_id, date, min_price, max_price, avg_price, median_price, price_std,
  offers_count, sellers_count, top_sellers_count, estimated_total_sellers,
  price_position_1, price_position_3, price_position_5, price_position_10,
  avg_seller_rating, in_stock_count, delta_price, delta_percent, sellers_delta, updated_at`

// UpsertDaily writes the rollup of one product and day, replacing any
// previous rollup for the same key.
func (s *Store) UpsertDaily(ctx context.Context, rec model.AnalyticsDailyRecord) error {
	row := rowFromDaily(rec, s.now())
	query := `
INSERT INTO analytics_daily (` + dailyColumns + `)
VALUES (:product_id, :date, :min_price, :max_price, :avg_price, :median_price, :price_std,
  :offers_count, :sellers_count, :top_sellers_count, :estimated_total_sellers,
  :price_position_1, :price_position_3, :price_position_5, :price_position_10,
  :avg_seller_rating, :in_stock_count, :delta_price, :delta_percent, :sellers_delta, :updated_at)
ON CONFLICT (product_id, date) DO UPDATE SET
  min_price = excluded.min_price,
  max_price = excluded.max_price,
  avg_price = excluded.avg_price,
  median_price = excluded.median_price,
  price_std = excluded.price_std,
  offers_count = excluded.offers_count,
  sellers_count = excluded.sellers_count,
  top_sellers_count = excluded.top_sellers_count,
  estimated_total_sellers = excluded.estimated_total_sellers,
  price_position_1 = excluded.price_position_1,
  price_position_3 = excluded.price_position_3,
  price_position_5 = excluded.price_position_5,
  price_position_10 = excluded.price_position_10,
  avg_seller_rating = excluded.avg_seller_rating,
  in_stock_count = excluded.in_stock_count,
  delta_price = excluded.delta_price,
  delta_percent = excluded.delta_percent,
  sellers_delta = excluded.sellers_delta,
  updated_at = excluded.updated_at`

	named, args, err := s.db.BindNamed(query, row)
	if err != nil {
		return fmt.Errorf("bind daily rollup: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, named, args...); err != nil {
		return fmt.Errorf("upsert daily rollup %s/%s: %w", row.ProductID, row.Date, err)
	}
	return nil
}

func (s *Store) GetDaily(ctx context.Context, productID string, date time.Time) (model.AnalyticsDailyRecord, error) {
	return s.getDaily(ctx, `SELECT `+dailyColumns+` FROM analytics_daily WHERE product_id = ? AND date = ?`,
		productID, formatDate(date))
}

// PreviousDaily returns the latest rollup strictly before date.
func (s *Store) PreviousDaily(ctx context.Context, productID string, before time.Time) (model.AnalyticsDailyRecord, error) {
	return s.getDaily(ctx, `SELECT `+dailyColumns+` FROM analytics_daily
WHERE product_id = ? AND date < ?
ORDER BY date DESC
LIMIT 1`, productID, formatDate(before))
}

// ListDaily returns the rollups of a product between from and to inclusive.
func (s *Store) ListDaily(ctx context.Context, productID string, from, to time.Time) ([]model.AnalyticsDailyRecord, error) {
	var rows []dailyRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+dailyColumns+` FROM analytics_daily
WHERE product_id = ? AND date >= ? AND date <= ?
ORDER BY date`), productID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("list daily rollups of %s: %w", productID, err)
	}

	records := make([]model.AnalyticsDailyRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.model()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) getDaily(ctx context.Context, query string, productID, date string) (model.AnalyticsDailyRecord, error) {
	var row dailyRow
	if err := s.db.GetContext(ctx, &row, s.q(query), productID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AnalyticsDailyRecord{}, fmt.Errorf("daily rollup %s/%s: %w", productID, date, ErrNotFound)
		}
		return model.AnalyticsDailyRecord{}, fmt.Errorf("get daily rollup %s/%s: %w", productID, date, err)
	}
	return row.model()
}
