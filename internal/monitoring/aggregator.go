package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guarzo/pricepos/internal/cache"
	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/storage"
)

// Store is the persistence the aggregator reads from and writes to.
type Store interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListOffers(ctx context.Context, productID string) ([]model.Offer, error)
	PreviousDaily(ctx context.Context, productID string, before time.Time) (model.AnalyticsDailyRecord, error)
	UpsertDaily(ctx context.Context, rec model.AnalyticsDailyRecord) error
	HistoryDates(ctx context.Context, productID string) ([]time.Time, error)
	HistoryOn(ctx context.Context, productID string, date time.Time) ([]model.PriceHistoryRecord, error)
}

// Aggregator writes the daily analytics rollups.
type Aggregator struct {
	store     Store
	snapshots *cache.Snapshots
	log       *logger.Entry
}

// NewAggregator creates an aggregator. snapshots may be nil, in which case
// offers always come from the store.
func NewAggregator(store Store, snapshots *cache.Snapshots) *Aggregator {
	return &Aggregator{
		store:     store,
		snapshots: snapshots,
		log:       logger.GetLogger().WithComponent("aggregator"),
	}
}

// RunSummary reports one aggregation run.
type RunSummary struct {
	Date       time.Time         `json:"date"`
	Products   int               `json:"products"`
	Aggregated int               `json:"aggregated"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// Run builds and upserts the rollup of date for every product. Running it
// twice for the same date leaves one record per product.
func (a *Aggregator) Run(ctx context.Context, date time.Time) (*RunSummary, error) {
	products, err := a.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{Date: storage.Day(date), Products: len(products), Errors: map[string]string{}}
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := a.AggregateProduct(ctx, p, date); err != nil {
			a.log.WithError(err).WithField("product_id", p.ExternalID).Error("daily aggregation failed")
			summary.Errors[p.ExternalID] = err.Error()
			continue
		}
		summary.Aggregated++
	}

	a.log.WithFields(logger.Fields{
		"date":       summary.Date.Format("2006-01-02"),
		"products":   summary.Products,
		"aggregated": summary.Aggregated,
	}).Info("daily aggregation finished")
	return summary, nil
}

// AggregateProduct builds and stores the rollup of one product. The latest
// cached scrape is preferred over the stored offers.
func (a *Aggregator) AggregateProduct(ctx context.Context, p model.Product, date time.Time) (model.AnalyticsDailyRecord, error) {
	offers, ok := a.snapshots.Offers(p.ExternalID)
	if !ok {
		var err error
		offers, err = a.store.ListOffers(ctx, p.ID)
		if err != nil {
			return model.AnalyticsDailyRecord{}, err
		}
	}

	var buckets *model.PriceBuckets
	if b, ok := a.snapshots.Buckets(p.ExternalID); ok {
		buckets = &b
	}

	previous, err := a.previous(ctx, p.ID, date)
	if err != nil {
		return model.AnalyticsDailyRecord{}, err
	}

	rec := BuildDailyRecord(p.ID, date, offers, buckets, previous)
	if err := a.store.UpsertDaily(ctx, rec); err != nil {
		return model.AnalyticsDailyRecord{}, err
	}
	return rec, nil
}

// Backfill rebuilds one rollup per distinct day of recorded price history,
// oldest first so that each day's deltas see the day before.
func (a *Aggregator) Backfill(ctx context.Context, productID string) (int, error) {
	dates, err := a.store.HistoryDates(ctx, productID)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, date := range dates {
		records, err := a.store.HistoryOn(ctx, productID, date)
		if err != nil {
			return written, err
		}
		if len(records) == 0 {
			continue
		}

		previous, err := a.previous(ctx, productID, date)
		if err != nil {
			return written, err
		}
		rec := BuildDailyRecord(productID, date, offersFromHistory(records), nil, previous)
		if err := a.store.UpsertDaily(ctx, rec); err != nil {
			return written, err
		}
		written++
	}

	a.log.WithFields(logger.Fields{"product_id": productID, "days": written}).Info("daily rollups backfilled")
	return written, nil
}

func (a *Aggregator) previous(ctx context.Context, productID string, date time.Time) (*model.AnalyticsDailyRecord, error) {
	prev, err := a.store.PreviousDaily(ctx, productID, storage.Day(date))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous rollup of %s: %w", productID, err)
	}
	return &prev, nil
}

func offersFromHistory(records []model.PriceHistoryRecord) []model.Offer {
	offers := make([]model.Offer, len(records))
	for i, r := range records {
		offers[i] = model.Offer{
			Price:        r.Price,
			SellerName:   r.SellerName,
			RankInSample: r.RankInSample,
		}
	}
	return offers
}
