package position

import (
	"context"
	"sort"
	"time"

	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
)

// CacheStore is the key-value cache the estimator reads and writes. Both
// operations are best effort.
type CacheStore interface {
	Get(key string, target interface{}) (bool, error)
	Put(key string, value interface{}, ttl time.Duration) error
}

// SnapshotFetcher scrapes a product without a sample cap.
type SnapshotFetcher interface {
	FetchAllPrices(ctx context.Context, productID string) (*model.Snapshot, error)
}

// PriceLists exposes the uncapped price list and buckets written by the
// last full scrape of a product.
type PriceLists interface {
	AllPrices(productID string) ([]float64, bool)
	Buckets(productID string) (model.PriceBuckets, bool)
}

// Estimator wires the pure estimators to a cache and a scrape source.
type Estimator struct {
	cache   CacheStore
	fetcher SnapshotFetcher
	lists   PriceLists
	ttl     time.Duration
	now     func() time.Time
	log     *logger.Entry
}

// NewEstimator creates an estimator. Either collaborator may be nil.
func NewEstimator(cache CacheStore, fetcher SnapshotFetcher) *Estimator {
	return &Estimator{
		cache:   cache,
		fetcher: fetcher,
		ttl:     ExactCacheTTL,
		now:     time.Now,
		log:     logger.GetLogger().WithComponent("position"),
	}
}

// WithPriceLists makes sample queries fall back to the scraped full price
// list when no exact snapshot is cached.
func (e *Estimator) WithPriceLists(lists PriceLists) *Estimator {
	e.lists = lists
	return e
}

// ExactKey is the cache key of the uncapped price list of a product.
func ExactKey(productID string) string {
	return "position:exact:" + productID
}

// Exact estimates against the complete price list of a product. A cached
// list is used unless forceRefresh is set; otherwise the product is scraped
// under ctx and the result cached. A failed scrape yields the degenerate
// estimate tagged unavailable.
func (e *Estimator) Exact(ctx context.Context, productID string, price float64, forceRefresh bool) model.PositionEstimate {
	if !forceRefresh {
		if snap, ok := e.Cached(productID); ok {
			return EstimateExact(price, snap.Prices, snap.TotalSellers)
		}
	}

	if e.fetcher == nil {
		return Degenerate(price, model.DataSourceUnavailable)
	}

	snapshot, err := e.fetcher.FetchAllPrices(ctx, productID)
	if err != nil {
		e.log.WithError(err).WithField("product_id", productID).Warn("exact position fetch failed")
		return Degenerate(price, model.DataSourceUnavailable)
	}

	snap, ok := e.Prime(productID, snapshot)
	if !ok {
		return Degenerate(price, model.DataSourceDegenerate)
	}
	return EstimateExact(price, snap.Prices, snap.TotalSellers)
}

// Prime caches the complete price list of an uncapped scrape so later exact
// queries skip the fetch. It reports false when the scrape has no prices,
// in which case nothing is cached.
func (e *Estimator) Prime(productID string, snapshot *model.Snapshot) (ExactSnapshot, bool) {
	prices := snapshot.Prices()
	if len(prices) == 0 {
		return ExactSnapshot{}, false
	}
	sort.Float64s(prices)

	snap := ExactSnapshot{
		Prices:       prices,
		TotalSellers: max(len(prices), snapshot.Buckets.TotalSellersCount),
		CachedAt:     e.now().UTC(),
	}
	e.store(productID, snap)
	return snap, true
}

// Position uses a cached exact price list when one is present, then the
// scraped full price list, and falls back to sample mode over offers.
func (e *Estimator) Position(ctx context.Context, productID string, price float64, offers []model.Offer, platformTotal int) model.PositionEstimate {
	if ctx.Err() == nil {
		if snap, ok := e.Cached(productID); ok {
			return Estimate(price, offers, platformTotal, &snap)
		}
		if snap, ok := e.fromPriceList(productID, platformTotal); ok {
			return Estimate(price, offers, platformTotal, &snap)
		}
	}
	return EstimateFromSample(price, offers, platformTotal)
}

func (e *Estimator) fromPriceList(productID string, platformTotal int) (ExactSnapshot, bool) {
	if e.lists == nil {
		return ExactSnapshot{}, false
	}
	prices, ok := e.lists.AllPrices(productID)
	if !ok || len(prices) == 0 {
		return ExactSnapshot{}, false
	}
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	total := max(len(sorted), platformTotal)
	if b, ok := e.lists.Buckets(productID); ok {
		total = max(total, b.TotalSellersCount)
	}
	return ExactSnapshot{Prices: sorted, TotalSellers: total}, true
}

// Cached returns the cached exact snapshot of a product, if any.
func (e *Estimator) Cached(productID string) (ExactSnapshot, bool) {
	var snap ExactSnapshot
	if e.cache == nil {
		return snap, false
	}
	found, err := e.cache.Get(ExactKey(productID), &snap)
	if err != nil {
		e.log.WithError(err).WithField("product_id", productID).Warn("exact position cache read failed")
		return snap, false
	}
	if !found || len(snap.Prices) == 0 {
		return snap, false
	}
	return snap, true
}

func (e *Estimator) store(productID string, snap ExactSnapshot) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(ExactKey(productID), snap, e.ttl); err != nil {
		e.log.WithError(err).WithField("product_id", productID).Warn("exact position cache write failed")
	}
}
