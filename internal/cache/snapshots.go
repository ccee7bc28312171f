package cache

import (
	"time"

	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
)

// Snapshots gives typed access to the per-product entries written after each
// scrape. Reads that fail are treated as misses and writes that fail are only
// logged, so a cache outage never fails the caller.
type Snapshots struct {
	store Store
	ttl   time.Duration
	log   *logger.Entry
}

func NewSnapshots(store Store, ttl time.Duration) *Snapshots {
	return &Snapshots{
		store: store,
		ttl:   ttl,
		log:   logger.GetLogger().WithComponent("cache"),
	}
}

func (s *Snapshots) PutOffers(productID string, offers []model.Offer) {
	s.put(OffersKey(productID), offers)
}

func (s *Snapshots) Offers(productID string) ([]model.Offer, bool) {
	var offers []model.Offer
	ok := s.get(OffersKey(productID), &offers)
	return offers, ok
}

func (s *Snapshots) PutBuckets(productID string, buckets model.PriceBuckets) {
	s.put(BucketsKey(productID), buckets)
}

func (s *Snapshots) Buckets(productID string) (model.PriceBuckets, bool) {
	var buckets model.PriceBuckets
	ok := s.get(BucketsKey(productID), &buckets)
	return buckets, ok
}

func (s *Snapshots) PutAllPrices(productID string, prices []float64) {
	s.put(AllPricesKey(productID), prices)
}

func (s *Snapshots) AllPrices(productID string) ([]float64, bool) {
	var prices []float64
	ok := s.get(AllPricesKey(productID), &prices)
	return prices, ok
}

func (s *Snapshots) get(key string, target interface{}) bool {
	if s == nil || s.store == nil {
		return false
	}
	found, err := s.store.Get(key, target)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	return found
}

func (s *Snapshots) put(key string, value interface{}) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Put(key, value, s.ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
