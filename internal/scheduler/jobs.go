package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/guarzo/pricepos/internal/monitoring"
	"github.com/guarzo/pricepos/internal/pipeline"
)

// Refresher re-scrapes every tracked product.
type Refresher interface {
	RefreshAll(ctx context.Context) (*pipeline.Summary, error)
}

// Aggregator writes the daily rollups of a date.
type Aggregator interface {
	Run(ctx context.Context, date time.Time) (*monitoring.RunSummary, error)
}

type Config struct {
	Enabled         bool
	PriceUpdate     time.Duration
	AggregationCron string
}

// PriceUpdateJob refreshes all products. Individual product failures are
// logged by the pipeline and do not fail the job.
func PriceUpdateJob(r Refresher) JobFunc {
	return func(ctx context.Context) error {
		summary, err := r.RefreshAll(ctx)
		if err != nil {
			return fmt.Errorf("refresh all products: %w", err)
		}
		if summary.Total > 0 && summary.Succeeded == 0 {
			return fmt.Errorf("all %d product refreshes failed", summary.Total)
		}
		return nil
	}
}

// AggregationJob rolls up the current day as given by now.
func AggregationJob(a Aggregator, now func() time.Time) JobFunc {
	return func(ctx context.Context) error {
		_, err := a.Run(ctx, now())
		if err != nil {
			return fmt.Errorf("daily aggregation: %w", err)
		}
		return nil
	}
}

// NewWithJobs builds a scheduler carrying the price update and the daily
// aggregation jobs, both enabled when cfg.Enabled is set.
func NewWithJobs(cfg Config, r Refresher, a Aggregator) (*Scheduler, error) {
	s := New()
	if err := s.Add(JobPriceUpdate, Every(cfg.PriceUpdate), cfg.Enabled, PriceUpdateJob(r)); err != nil {
		return nil, err
	}
	if err := s.Add(JobAnalyticsAggregation, cfg.AggregationCron, cfg.Enabled, AggregationJob(a, time.Now)); err != nil {
		return nil, err
	}
	return s, nil
}
