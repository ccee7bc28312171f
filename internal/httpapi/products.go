package httpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/guarzo/pricepos/internal/model"
)

type createProductRequest struct {
	URL string `json:"url"`
}

func (s *Server) listProducts(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	products, err := s.deps.Store.ListProducts(ctx)
	if err != nil {
		return err
	}
	return c.JSON(products)
}

// createProduct scrapes a product by marketplace URL or id and starts
// tracking it.
func (s *Server) createProduct(c *fiber.Ctx) error {
	var req createProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return badRequest("url is required")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.deps.Pipeline.Refresh(ctx, req.URL)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// maxBulkProducts bounds one bulk request.
const maxBulkProducts = 50

type bulkProductsRequest struct {
	URLs []string `json:"urls"`
}

// createProducts scrapes a batch of products on the worker pool. Failures
// are reported per URL in the summary.
func (s *Server) createProducts(c *fiber.Ctx) error {
	var req bulkProductsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	refs := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			refs = append(refs, u)
		}
	}
	if len(refs) == 0 {
		return badRequest("urls is required")
	}
	if len(refs) > maxBulkProducts {
		return badRequest(fmt.Sprintf("at most %d urls per request", maxBulkProducts))
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	return c.JSON(s.deps.Pipeline.RefreshMany(ctx, refs))
}

func (s *Server) getProduct(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) deleteProduct(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	if err := s.deps.Store.DeleteProduct(ctx, p.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) refreshProduct(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	result, err := s.deps.Pipeline.Refresh(ctx, p.ExternalID)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) getOffers(c *fiber.Ctx) error {
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
	return c.JSON(offers)
}

type historyDay struct {
	Date        string                     `json:"date"`
	Records     []model.PriceHistoryRecord `json:"offers"`
	MinPrice    float64                    `json:"min_price"`
	MaxPrice    float64                    `json:"max_price"`
	AvgPrice    float64                    `json:"avg_price"`
	OffersCount int                        `json:"offers_count"`
}

// getHistory groups recorded prices by UTC day between from and to
// (inclusive, YYYY-MM-DD). The range defaults to the last 30 days.
func (s *Server) getHistory(c *fiber.Ctx) error {
	to, err := parseDate(c.Query("to"), s.now())
	if err != nil {
		return err
	}
	from, err := parseDate(c.Query("from"), to.AddDate(0, 0, -30))
	if err != nil {
		return err
	}
	if from.After(to) {
		return badRequest("from must not be after to")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.product(ctx, c)
	if err != nil {
		return err
	}
	records, err := s.deps.Store.PriceHistory(ctx, p.ID, from)
	if err != nil {
		return err
	}

	end := to.AddDate(0, 0, 1)
	days := []historyDay{}
	for _, r := range records {
		if !r.RecordedAt.Before(end) {
			break
		}
		key := r.RecordedAt.UTC().Format(dateLayout)
		if len(days) == 0 || days[len(days)-1].Date != key {
			days = append(days, historyDay{Date: key, MinPrice: r.Price, MaxPrice: r.Price})
		}
		d := &days[len(days)-1]
		d.Records = append(d.Records, r)
		d.MinPrice = min(d.MinPrice, r.Price)
		d.MaxPrice = max(d.MaxPrice, r.Price)
		d.AvgPrice += (r.Price - d.AvgPrice) / float64(len(d.Records))
		d.OffersCount = len(d.Records)
	}
	return c.JSON(days)
}

// product resolves the :id parameter, which may be an internal or an
// external product id.
func (s *Server) product(ctx context.Context, c *fiber.Ctx) (model.Product, error) {
	ref := strings.TrimSpace(c.Params("id"))
	if ref == "" {
		return model.Product{}, badRequest("product id is required")
	}
	return s.deps.Store.ResolveProduct(ctx, ref)
}

// offers returns the latest scraped offers, from the cache when present and
// from the database otherwise. A database read warms the cache.
func (s *Server) offers(ctx context.Context, p model.Product) ([]model.Offer, error) {
	if offers, ok := s.deps.Snapshots.Offers(p.ExternalID); ok {
		return offers, nil
	}
	offers, err := s.deps.Store.ListOffers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	s.deps.Snapshots.PutOffers(p.ExternalID, offers)
	return offers, nil
}

// buckets returns the summary of the last scrape, or nil when none is
// cached.
func (s *Server) buckets(p model.Product) *model.PriceBuckets {
	b, ok := s.deps.Snapshots.Buckets(p.ExternalID)
	if !ok {
		return nil
	}
	return &b
}

const dateLayout = "2006-01-02"

func parseDate(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		y, m, d := fallback.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, badRequest("dates must be formatted YYYY-MM-DD")
	}
	return t, nil
}
