package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/guarzo/pricepos/internal/cache"
	"github.com/guarzo/pricepos/internal/concurrent"
	"github.com/guarzo/pricepos/internal/config"
	"github.com/guarzo/pricepos/internal/httpapi"
	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/monitoring"
	"github.com/guarzo/pricepos/internal/offers"
	"github.com/guarzo/pricepos/internal/pipeline"
	"github.com/guarzo/pricepos/internal/position"
	"github.com/guarzo/pricepos/internal/progress"
	"github.com/guarzo/pricepos/internal/report"
	"github.com/guarzo/pricepos/internal/scheduler"
	"github.com/guarzo/pricepos/internal/storage"
)

func main() {
	log := logger.GetLogger()

	configPath := flag.String("config", "", "Path to the YAML configuration file")
	backfillRef := flag.String("backfill", "", "Rebuild the daily rollups of a product (or \"all\") from price history and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *backfillRef); err != nil {
		log.WithError(err).Error("pricepos stopped with an error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, backfillRef string) error {
	log := logger.GetLogger().WithComponent("main")

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return err
	}
	defer store.Close()

	layered, err := cache.Open(cfg.Cache.Path, cfg.Cache.MemoryEntries, cfg.Cache.TTL)
	if err != nil {
		return err
	}
	snapshots := cache.NewSnapshots(layered, cfg.Cache.TTL)

	aggregator := monitoring.NewAggregator(store, snapshots)
	if backfillRef != "" {
		return backfill(ctx, store, aggregator, backfillRef)
	}

	client := offers.NewClient(offers.Config{
		BaseURL:           cfg.Scraper.BaseURL,
		CityID:            cfg.Scraper.CityID,
		TopSellers:        cfg.Scraper.TopSellers,
		Timeout:           cfg.Scraper.Timeout,
		MaxRetries:        cfg.Scraper.MaxRetries,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		Burst:             cfg.Scraper.Burst,
		MaxPages:          cfg.Scraper.MaxPages,
		PageSize:          cfg.Scraper.PageSize,
		UserAgent:         cfg.Scraper.UserAgent,
	})
	estimator := position.NewEstimator(layered, client).WithPriceLists(snapshots)

	// A full refresh pages through every offer, so a job may span many
	// requests.
	pool := concurrent.NewConcurrentFetcher(concurrent.FetcherConfig{
		Workers:      cfg.Scraper.Workers,
		RateLimit:    rate.Limit(cfg.Scraper.RequestsPerSecond),
		Timeout:      cfg.Scraper.Timeout * time.Duration(cfg.Scraper.MaxPages+2),
		ErrorHandler: concurrent.DefaultErrorHandler,
	})
	service := pipeline.NewService(client, store, snapshots, estimator, pool, pipeline.Config{
		TopSellers:     cfg.Scraper.TopSellers,
		ParseAllPrices: cfg.Scraper.ParseAllPrices,
	})

	sched, err := scheduler.NewWithJobs(scheduler.Config{
		Enabled:         cfg.Scheduler.Enabled,
		PriceUpdate:     cfg.Scheduler.PriceUpdate,
		AggregationCron: cfg.Scheduler.AggregationCron,
	}, service, aggregator)
	if err != nil {
		return err
	}

	deps := httpapi.Deps{
		Store:      store,
		Pipeline:   service,
		Snapshots:  snapshots,
		Estimator:  estimator,
		Aggregator: aggregator,
		Scheduler:  sched,
	}
	if cfg.Reports.S3.Enabled {
		s3cfg := cfg.Reports.S3
		archiver, err := report.NewArchiver(ctx, report.S3Config{
			Endpoint:        s3cfg.Endpoint,
			Region:          s3cfg.Region,
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return err
		}
		deps.Archiver = archiver
	} else {
		log.Info("S3 report archive disabled")
	}

	app := httpapi.New(deps, httpapi.Config{
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	sched.Start()

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("http server listening")
		serveErr <- app.Listen(cfg.Server.Addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("scheduler shutdown timed out")
	}

	metrics := pool.GetMetrics()
	log.WithFields(logger.Fields{
		"refreshes":      metrics.TotalRequests,
		"refresh_errors": metrics.FailedRequests,
		"cached_items":   layered.Stats().TotalItems,
	}).Info("pricepos stopped")
	return runErr
}

// backfill rebuilds the rollups of one product, or of every product when
// ref is "all".
func backfill(ctx context.Context, store *storage.Store, aggregator *monitoring.Aggregator, ref string) error {
	var products []model.Product
	if ref == "all" {
		var err error
		if products, err = store.ListProducts(ctx); err != nil {
			return err
		}
	} else {
		p, err := store.ResolveProduct(ctx, ref)
		if err != nil {
			return err
		}
		products = []model.Product{p}
	}

	log := logger.GetLogger().WithComponent("backfill")
	bar := progress.New(os.Stderr, "Backfilling daily rollups", len(products))
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := aggregator.Backfill(ctx, p.ID)
		if err != nil {
			log.WithError(err).WithField("product_id", p.ExternalID).Error("backfill failed")
		}
		bar.Step(err)
	}
	bar.Finish()

	if _, failed := bar.Counts(); failed > 0 {
		return fmt.Errorf("backfill failed for %d of %d products", failed, len(products))
	}
	return nil
}
