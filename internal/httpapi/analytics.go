package httpapi

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/marketplace"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/report"
	"github.com/guarzo/pricepos/internal/storage"
)

type statisticsResponse struct {
	analysis.Statistics
	PriceBuckets *model.PriceBuckets `json:"price_buckets"`
	OffersCount  int                 `json:"offers_count"`
}

func (s *Server) getStatistics(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	offers, err := s.offers(ctx, p)
	if err != nil {
		return err
	}
	return c.JSON(statisticsResponse{
		Statistics:   analysis.ComputeStatistics(offers),
		PriceBuckets: s.buckets(p),
		OffersCount:  len(offers),
	})
}

// estimatePosition places ?price= among the sampled offers, upgraded to the
// exact list when one is cached.
func (s *Server) estimatePosition(c *fiber.Ctx) error {
	price, err := requiredPrice(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	offers, err := s.offers(ctx, p)
	if err != nil {
		return err
	}
	total := 0
	if b := s.buckets(p); b != nil {
		total = b.TotalSellersCount
	}
	return c.JSON(s.deps.Estimator.Position(ctx, p.ExternalID, price, offers, total))
}

// estimateExactPosition places ?price= in the complete price list, scraping
// it when not cached or when ?force=true.
func (s *Server) estimateExactPosition(c *fiber.Ctx) error {
	price, err := requiredPrice(c)
	if err != nil {
		return err
	}
	force := c.QueryBool("force", false)

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	return c.JSON(s.deps.Estimator.Exact(ctx, p.ExternalID, price, force))
}

// getAnalytics runs every market analyzer over the current offers and the
// recent price history. ?price= is the caller's candidate price.
func (s *Server) getAnalytics(c *fiber.Ctx) error {
	target, err := optionalPrice(c)
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	analytics, _, err := s.analytics(ctx, p, target)
	if err != nil {
		return err
	}
	return c.JSON(analytics)
}

type scenarioResponse struct {
	ScenarioPrice      float64          `json:"scenario_price"`
	CurrentPrice       float64          `json:"current_price"`
	EstimatedPosition  int              `json:"estimated_position"`
	TotalSellers       int              `json:"total_sellers"`
	Percentile         float64          `json:"percentile"`
	DataSource         model.DataSource `json:"data_source"`
	PriceChangePercent float64          `json:"price_change_percent"`
	// CurrentPosition and PositionChange compare against current_price;
	// a positive change is a move towards rank 1.
	CurrentPosition int `json:"current_position"`
	PositionChange  int `json:"position_change"`
}

// analyzeScenario estimates where ?scenario_price= would rank compared with
// ?current_price=.
func (s *Server) analyzeScenario(c *fiber.Ctx) error {
	scenario, err := requiredPriceParam(c, "scenario_price")
	if err != nil {
		return err
	}
	current, err := requiredPriceParam(c, "current_price")
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	offers, err := s.offers(ctx, p)
	if err != nil {
		return err
	}
	total := 0
	if b := s.buckets(p); b != nil {
		total = b.TotalSellersCount
	}

	at := s.deps.Estimator.Position(ctx, p.ExternalID, scenario, offers, total)
	now := s.deps.Estimator.Position(ctx, p.ExternalID, current, offers, total)
	return c.JSON(scenarioResponse{
		ScenarioPrice:      scenario,
		CurrentPrice:       current,
		EstimatedPosition:  at.EstimatedPosition,
		TotalSellers:       at.TotalSellers,
		Percentile:         at.Percentile,
		DataSource:         at.DataSource,
		PriceChangePercent: marketplace.PercentChange(current, scenario),
		CurrentPosition:    now.EstimatedPosition,
		PositionChange:     now.EstimatedPosition - at.EstimatedPosition,
	})
}

type priceComparisonResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	marketplace.PriceComparison
}

// comparePrices compares the last scrape of ?date1= with that of ?date2=.
func (s *Server) comparePrices(c *fiber.Ctx) error {
	if c.Query("date1") == "" || c.Query("date2") == "" {
		return badRequest("date1 and date2 are required")
	}
	date1, err := parseDate(c.Query("date1"), s.now())
	if err != nil {
		return err
	}
	date2, err := parseDate(c.Query("date2"), s.now())
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	history1, err := s.deps.Store.HistoryOn(ctx, p.ID, date1)
	if err != nil {
		return err
	}
	history2, err := s.deps.Store.HistoryOn(ctx, p.ID, date2)
	if err != nil {
		return err
	}
	return c.JSON(priceComparisonResponse{
		ProductID:       p.ID,
		ProductName:     p.Name,
		PriceComparison: marketplace.ComparePrices(date1, history1, date2, history2),
	})
}

// getDaily returns the rollup of ?date= (today by default), building and
// storing it when the day has not been aggregated yet.
func (s *Server) getDaily(c *fiber.Ctx) error {
	date, err := parseDate(c.Query("date"), s.now())
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	rec, err := s.deps.Store.GetDaily(ctx, p.ID, date)
	if errors.Is(err, storage.ErrNotFound) {
		rec, err = s.deps.Aggregator.AggregateProduct(ctx, p, date)
	}
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) listDaily(c *fiber.Ctx) error {
	to, err := parseDate(c.Query("to"), s.now())
	if err != nil {
		return err
	}
	from, err := parseDate(c.Query("from"), to.AddDate(0, 0, -30))
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	records, err := s.deps.Store.ListDaily(ctx, p.ID, from, to)
	if err != nil {
		return err
	}
	if records == nil {
		records = []model.AnalyticsDailyRecord{}
	}
	return c.JSON(records)
}

func (s *Server) backfillDaily(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	days, err := s.deps.Aggregator.Backfill(ctx, p.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"product_id": p.ID, "days": days})
}

// getReport renders the CSV report of a product. With ?archive=true the
// report is also uploaded and its object key returned in X-Report-Key.
func (s *Server) getReport(c *fiber.Ctx) error {
	target, err := optionalPrice(c)
	if err != nil {
		return err
	}
	archive := c.QueryBool("archive", false)
	if archive && s.deps.Archiver == nil {
		return unavailable("report archiving is not configured")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	analytics, offers, err := s.analytics(ctx, p, target)
	if err != nil {
		return err
	}

	r := report.ProductReport{
		Product:     p,
		GeneratedAt: s.now(),
		Statistics:  analysis.ComputeStatistics(offers),
		Analytics:   &analytics,
		Offers:      offers,
	}
	if target != nil {
		total := 0
		if b := s.buckets(p); b != nil {
			total = b.TotalSellersCount
		}
		estimate := s.deps.Estimator.Position(ctx, p.ExternalID, *target, offers, total)
		r.Position = &estimate
	}

	data, err := report.Render(r)
	if err != nil {
		return err
	}
	if archive {
		key, err := s.deps.Archiver.Archive(ctx, p.ExternalID, data)
		if err != nil {
			return err
		}
		c.Set("X-Report-Key", key)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="report-`+p.ExternalID+`.csv"`)
	return c.Send(data)
}

// compareReport renders two products (?product1=, ?product2=) side by side
// as CSV.
func (s *Server) compareReport(c *fiber.Ctx) error {
	ref1, ref2 := strings.TrimSpace(c.Query("product1")), strings.TrimSpace(c.Query("product2"))
	if ref1 == "" || ref2 == "" {
		return badRequest("product1 and product2 are required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	sides := make([]report.ComparisonSide, 2)
	for i, ref := range []string{ref1, ref2} {
		p, err := s.deps.Store.ResolveProduct(ctx, ref)
		if err != nil {
			return err
		}
		offers, err := s.offers(ctx, p)
		if err != nil {
			return err
		}
		sides[i] = report.ComparisonSide{Product: p, Offers: offers}
	}

	data, err := report.RenderComparison(sides[0], sides[1], s.now())
	if err != nil {
		return err
	}
	name := "comparison-" + sides[0].Product.ExternalID + "-vs-" + sides[1].Product.ExternalID + ".csv"
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(data)
}

func (s *Server) analytics(ctx context.Context, p model.Product, target *float64) (marketplace.MarketAnalytics, []model.Offer, error) {
	offers, err := s.offers(ctx, p)
	if err != nil {
		return marketplace.MarketAnalytics{}, nil, err
	}
	history, err := s.deps.Store.PriceHistory(ctx, p.ID, s.now().Add(-s.cfg.HistoryWindow))
	if err != nil {
		return marketplace.MarketAnalytics{}, nil, err
	}
	return marketplace.ComputeMarketAnalytics(offers, history, target, marketplace.DefaultOptions()), offers, nil
}

func requiredPrice(c *fiber.Ctx) (float64, error) {
	return requiredPriceParam(c, "price")
}

func optionalPrice(c *fiber.Ctx) (*float64, error) {
	return priceParam(c, "price")
}

func requiredPriceParam(c *fiber.Ctx, name string) (float64, error) {
	price, err := priceParam(c, name)
	if err != nil {
		return 0, err
	}
	if price == nil {
		return 0, badRequest(name + " is required")
	}
	return *price, nil
}

// priceParam parses a positive finite query price. Absent means nil.
func priceParam(c *fiber.Ctx, name string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, badRequest(name + " must be a positive number")
	}
	return &price, nil
}
