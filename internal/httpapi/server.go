package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/guarzo/pricepos/internal/cache"
	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/offers"
	"github.com/guarzo/pricepos/internal/pipeline"
	"github.com/guarzo/pricepos/internal/scheduler"
	"github.com/guarzo/pricepos/internal/storage"
)

// Store is the persistence the API reads.
type Store interface {
	Ping(ctx context.Context) error
	ListProducts(ctx context.Context) ([]model.Product, error)
	ResolveProduct(ctx context.Context, ref string) (model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListOffers(ctx context.Context, productID string) ([]model.Offer, error)
	PriceHistory(ctx context.Context, productID string, since time.Time) ([]model.PriceHistoryRecord, error)
	HistoryOn(ctx context.Context, productID string, date time.Time) ([]model.PriceHistoryRecord, error)
	GetDaily(ctx context.Context, productID string, date time.Time) (model.AnalyticsDailyRecord, error)
	ListDaily(ctx context.Context, productID string, from, to time.Time) ([]model.AnalyticsDailyRecord, error)
}

type Refresher interface {
	Refresh(ctx context.Context, productRef string) (*pipeline.RefreshResult, error)
	RefreshMany(ctx context.Context, refs []string) *pipeline.Summary
}

type PositionEstimator interface {
	Position(ctx context.Context, productID string, price float64, offers []model.Offer, platformTotal int) model.PositionEstimate
	Exact(ctx context.Context, productID string, price float64, forceRefresh bool) model.PositionEstimate
}

type DailyAggregator interface {
	AggregateProduct(ctx context.Context, p model.Product, date time.Time) (model.AnalyticsDailyRecord, error)
	Backfill(ctx context.Context, productID string) (int, error)
}

type ReportArchiver interface {
	Archive(ctx context.Context, externalID string, data []byte) (string, error)
}

type JobScheduler interface {
	Jobs() []scheduler.JobStatus
	Job(name string) (scheduler.JobStatus, error)
	Enable(name string) error
	Disable(name string) error
	Reschedule(name, spec string) error
	RunNow(name string) error
}

// Deps are the services behind the API. Scheduler and Archiver are
// optional; their routes answer 503 when unset.
type Deps struct {
	Store      Store
	Pipeline   Refresher
	Snapshots  *cache.Snapshots
	Estimator  PositionEstimator
	Aggregator DailyAggregator
	Scheduler  JobScheduler
	Archiver   ReportArchiver
}

type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	// HistoryWindow bounds the price history fed to the analytics.
	HistoryWindow time.Duration
}

// Server holds the handlers of the REST API.
type Server struct {
	deps Deps
	cfg  Config
	now  func() time.Time
	log  *logger.Entry
}

// New builds the fiber application with every route mounted.
func New(deps Deps, cfg Config) *fiber.App {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 45 * time.Second
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 90 * 24 * time.Hour
	}
	s := &Server{deps: deps, cfg: cfg, now: time.Now, log: logger.GetLogger().WithComponent("http")}
	return s.app()
}

func (s *Server) app() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pricepos",
		ReadTimeout:           s.cfg.ReadTimeout,
		WriteTimeout:          s.cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(s.accessLog)

	app.Get("/health", s.health)

	api := app.Group("/api/v1")

	products := api.Group("/products")
	products.Get("/", s.listProducts)
	products.Post("/", s.createProduct)
	products.Post("/bulk", s.createProducts)
	products.Get("/:id", s.getProduct)
	products.Delete("/:id", s.deleteProduct)
	products.Post("/:id/refresh", s.refreshProduct)
	products.Get("/:id/offers", s.getOffers)
	products.Get("/:id/history", s.getHistory)
	products.Get("/:id/statistics", s.getStatistics)
	products.Post("/:id/position", s.estimatePosition)
	products.Post("/:id/position/exact", s.estimateExactPosition)
	products.Get("/:id/analytics", s.getAnalytics)
	products.Post("/:id/scenario", s.analyzeScenario)
	products.Get("/:id/price-comparison", s.comparePrices)
	products.Get("/:id/daily", s.getDaily)
	products.Get("/:id/daily/range", s.listDaily)
	products.Post("/:id/daily/backfill", s.backfillDaily)
	products.Get("/:id/report", s.getReport)

	api.Get("/reports/compare", s.compareReport)

	jobs := api.Group("/scheduler")
	jobs.Get("/", s.listJobs)
	jobs.Get("/:job", s.getJob)
	jobs.Put("/:job", s.updateJob)
	jobs.Post("/:job/run", s.runJob)

	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.cfg.RequestTimeout)
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		// Let the error handler set the final status before logging.
		if herr := s.handleError(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	fields := logger.Fields{
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     c.Response().StatusCode(),
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		fields["request_id"] = rid
	}
	s.log.WithFields(fields).Debug("request handled")
	return nil
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, scheduler.ErrUnknownJob):
		return fiber.StatusNotFound
	case errors.Is(err, offers.ErrInvalidProductURL):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// handleError renders every failure as {"error": message}. Internal errors
// are logged and hidden from the client.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		s.log.WithError(err).WithFields(logger.Fields{"method": c.Method(), "path": c.Path()}).Error("request failed")
		message = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func badRequest(message string) error {
	return fiber.NewError(fiber.StatusBadRequest, message)
}

func unavailable(message string) error {
	return fiber.NewError(fiber.StatusServiceUnavailable, message)
}
