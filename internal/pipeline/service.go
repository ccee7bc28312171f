package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/guarzo/pricepos/internal/cache"
	"github.com/guarzo/pricepos/internal/concurrent"
	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/offers"
	"github.com/guarzo/pricepos/internal/position"
)

// SnapshotSource scrapes the offers of a product.
type SnapshotSource interface {
	FetchProduct(ctx context.Context, productID string, limit int) (*model.Snapshot, error)
}

// Repository is the persistence the pipeline writes to.
type Repository interface {
	UpsertProduct(ctx context.Context, p model.Product) (model.Product, error)
	ReplaceOffers(ctx context.Context, productID string, offers []model.Offer, scrapedAt time.Time) error
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// PricePrimer receives the uncapped price list of a product.
type PricePrimer interface {
	Prime(productID string, snapshot *model.Snapshot) (position.ExactSnapshot, bool)
}

type Config struct {
	TopSellers     int
	ParseAllPrices bool
}

// Service scrapes products and records the results.
type Service struct {
	source    SnapshotSource
	repo      Repository
	snapshots *cache.Snapshots
	primer    PricePrimer
	pool      *concurrent.ConcurrentFetcher
	config    Config
	now       func() time.Time
	log       *logger.Entry
}

// NewService builds the pipeline. snapshots and primer may be nil.
func NewService(source SnapshotSource, repo Repository, snapshots *cache.Snapshots, primer PricePrimer, pool *concurrent.ConcurrentFetcher, config Config) *Service {
	if config.TopSellers <= 0 {
		config.TopSellers = 10
	}
	if pool == nil {
		pool = concurrent.NewConcurrentFetcher(concurrent.FetcherConfig{ErrorHandler: concurrent.DefaultErrorHandler})
	}
	return &Service{
		source:    source,
		repo:      repo,
		snapshots: snapshots,
		primer:    primer,
		pool:      pool,
		config:    config,
		now:       time.Now,
		log:       logger.GetLogger().WithComponent("pipeline"),
	}
}

// RefreshResult describes one completed refresh.
type RefreshResult struct {
	Product   model.Product   `json:"product"`
	Snapshot  *model.Snapshot `json:"snapshot"`
	AllPrices int             `json:"all_prices"`
}

// Refresh scrapes one product, given as a marketplace URL or id, stores the
// top offers and their history, and refreshes the cached snapshot entries.
func (s *Service) Refresh(ctx context.Context, productRef string) (*RefreshResult, error) {
	externalID, err := offers.ExtractProductID(productRef)
	if err != nil {
		return nil, err
	}
	entry := s.log.WithField("product_id", externalID)
	start := time.Now()

	snapshot, err := s.source.FetchProduct(ctx, externalID, s.config.TopSellers)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", externalID, err)
	}

	product, err := s.repo.UpsertProduct(ctx, model.Product{
		ExternalID: externalID,
		Name:       snapshot.Name,
		Category:   snapshot.Category,
	})
	if err != nil {
		return nil, err
	}

	scrapedAt := snapshot.FetchedAt
	if scrapedAt.IsZero() {
		scrapedAt = s.now()
	}
	if err := s.repo.ReplaceOffers(ctx, product.ID, snapshot.Offers, scrapedAt); err != nil {
		return nil, err
	}

	s.snapshots.PutOffers(externalID, snapshot.Offers)
	s.snapshots.PutBuckets(externalID, snapshot.Buckets)

	result := &RefreshResult{Product: product, Snapshot: snapshot}
	if s.config.ParseAllPrices {
		result.AllPrices = s.refreshAllPrices(ctx, externalID)
	}

	entry.WithFields(logger.Fields{
		"offers":     len(snapshot.Offers),
		"all_prices": result.AllPrices,
		"duration":   time.Since(start).String(),
	}).Info("product refreshed")
	return result, nil
}

// refreshAllPrices stores the uncapped price list. Failures only cost the
// exact mode its warm cache, so they are logged and swallowed.
func (s *Service) refreshAllPrices(ctx context.Context, externalID string) int {
	full, err := s.source.FetchProduct(ctx, externalID, 0)
	if err != nil {
		s.log.WithError(err).WithField("product_id", externalID).Warn("full price list fetch failed")
		return 0
	}

	prices := full.Prices()
	s.snapshots.PutAllPrices(externalID, prices)
	if s.primer != nil {
		s.primer.Prime(externalID, full)
	}
	return len(prices)
}

// Summary reports a batch refresh. Errors and Products are keyed by the
// reference the caller passed in.
type Summary struct {
	Total     int                      `json:"total"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Products  map[string]model.Product `json:"products,omitempty"`
	Errors    map[string]string        `json:"errors,omitempty"`
	Duration  time.Duration            `json:"duration"`
}

// RefreshAll re-scrapes every stored product on the worker pool. Individual
// failures are reported in the summary; only listing the products can fail
// the run as a whole.
func (s *Service) RefreshAll(ctx context.Context) (*Summary, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ExternalID
	}
	return s.RefreshMany(ctx, ids), nil
}

// RefreshMany scrapes a batch of marketplace URLs or ids on the worker pool.
func (s *Service) RefreshMany(ctx context.Context, refs []string) *Summary {
	start := time.Now()
	results := s.pool.FetchAll(ctx, refs, concurrent.FetchFunc(func(ctx context.Context, ref string) (interface{}, error) {
		return s.Refresh(ctx, ref)
	}))

	summary := &Summary{Total: len(refs), Products: map[string]model.Product{}, Errors: map[string]string{}}
	for _, r := range results {
		if r.Error != nil {
			summary.Failed++
			summary.Errors[r.ProductID] = r.Error.Error()
			continue
		}
		summary.Succeeded++
		if res, ok := r.Data.(*RefreshResult); ok {
			summary.Products[r.ProductID] = res.Product
		}
	}
	summary.Duration = time.Since(start)

	s.log.WithFields(logger.Fields{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("refresh run finished")
	return summary
}
