package offers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/guarzo/pricepos/internal/logger"
	"github.com/guarzo/pricepos/internal/model"
	"golang.org/x/time/rate"
)

const (
	offerViewPath = "/yml/offer-view/offers/"
	cityCookie    = "kaspi.storefront.cookie.city"
)

// Config controls how the client talks to the marketplace.
type Config struct {
	BaseURL           string
	CityID            string
	ZoneID            string
	TopSellers        int
	Timeout           time.Duration
	MaxRetries        int
	Backoff           time.Duration // base delay, grows with the square of the attempt
	RequestsPerSecond float64
	Burst             int
	MaxPages          int
	PageSize          int
	UserAgent         string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://kaspi.kz",
		CityID:            "750000000",
		ZoneID:            "Magnum_ZONE1",
		TopSellers:        10,
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		Backoff:           time.Second,
		RequestsPerSecond: 2,
		Burst:             1,
		MaxPages:          50,
		PageSize:          64,
		UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetriesExhaustedError wraps the last failure of a request the client has
// already retried. It is never retryable, so callers with their own retry
// policy do not multiply the attempts.
type RetriesExhaustedError struct {
	ProductID string
	Attempts  int
	Err       error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("fetch offers for %s failed after %d attempts: %v", e.ProductID, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

func (e *RetriesExhaustedError) Retryable() bool { return false }

// Client fetches competitor offers for a product.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewClient(config Config) *Client {
	defaults := DefaultConfig()
	if config.ZoneID == "" {
		config.ZoneID = defaults.ZoneID
	}
	if config.TopSellers <= 0 {
		config.TopSellers = defaults.TopSellers
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		log:     logger.GetLogger().WithComponent("offers"),
	}
}

// TopSellers is the sample size used when no explicit limit is given.
func (c *Client) TopSellers() int {
	return c.config.TopSellers
}

// FetchProduct fetches the cheapest limit offers of a product. A limit of 0
// pages through every offer, up to the configured page cap. When the offer
// payload carries no product name the product page is consulted.
func (c *Client) FetchProduct(ctx context.Context, productID string, limit int) (*model.Snapshot, error) {
	snapshot, err := c.fetch(ctx, productID, limit)
	if err != nil {
		return nil, err
	}

	if snapshot.Name == "" || snapshot.Category == "" {
		meta, err := c.FetchPageMetadata(ctx, productID)
		if err != nil {
			c.log.WithError(err).WithField("product_id", productID).Debug("product page metadata unavailable")
		} else {
			if snapshot.Name == "" {
				snapshot.Name = meta.Name
			}
			if snapshot.Category == "" {
				snapshot.Category = meta.Category
			}
		}
	}
	if snapshot.Name == "" {
		snapshot.Name = "Product " + productID
	}
	return snapshot, nil
}

// FetchAllPrices fetches the full offer list for exact position estimates.
func (c *Client) FetchAllPrices(ctx context.Context, productID string) (*model.Snapshot, error) {
	return c.fetch(ctx, productID, 0)
}

func (c *Client) fetch(ctx context.Context, productID string, limit int) (*model.Snapshot, error) {
	start := time.Now()
	entry := c.log.WithField("product_id", productID)
	defer entry.LogDuration("fetch offers", start)

	var (
		raw   []rawOffer
		total int
	)
	if limit > 0 {
		resp, err := c.fetchPage(ctx, productID, limit, 0)
		if err != nil {
			return nil, err
		}
		raw = resp.Offers
		if len(raw) > limit {
			raw = raw[:limit]
		}
		total = resp.totalSellers()
	} else {
		for page := 0; page < c.config.MaxPages; page++ {
			resp, err := c.fetchPage(ctx, productID, c.config.PageSize, page)
			if err != nil {
				return nil, err
			}
			raw = append(raw, resp.Offers...)
			total = max(total, resp.totalSellers())
			if len(resp.Offers) < c.config.PageSize || (total > 0 && len(raw) >= total) {
				break
			}
		}
	}

	snapshot := normalize(productID, raw, total)
	snapshot.FetchedAt = time.Now().UTC()
	entry.WithFields(logger.Fields{
		"offers":        len(snapshot.Offers),
		"total_sellers": total,
	}).Debug("fetched offers")
	return snapshot, nil
}

// fetchPage posts one offer-view request, retrying transient failures.
func (c *Client) fetchPage(ctx context.Context, productID string, limit, page int) (*offerViewResponse, error) {
	body, err := json.Marshal(newOfferViewRequest(c.config.CityID, c.config.ZoneID, productID, limit, page))
	if err != nil {
		return nil, fmt.Errorf("marshal offer request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt*attempt) * c.config.Backoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.post(ctx, productID, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.WithError(err).WithFields(logger.Fields{
			"product_id": productID,
			"attempt":    attempt + 1,
		}).Warn("offer request failed")
	}

	return nil, &RetriesExhaustedError{ProductID: productID, Attempts: c.config.MaxRetries + 1, Err: lastErr}
}

func (c *Client) post(ctx context.Context, productID string, body []byte) (*offerViewResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+offerViewPath+productID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, productID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	reader, err := getReader(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}

	var decoded offerViewResponse
	if err := json.NewDecoder(reader).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode offer response: %w", err)
	}
	return &decoded, nil
}

func (c *Client) setHeaders(req *http.Request, productID string) {
	req.Header.Set("Accept", "application/json, text/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Origin", c.config.BaseURL)
	req.Header.Set("Referer", c.productURL(productID))
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-KS-City", c.config.CityID)
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.AddCookie(&http.Cookie{Name: cityCookie, Value: c.config.CityID})
}

func (c *Client) productURL(productID string) string {
	return c.config.BaseURL + "/shop/p/" + productID + "/"
}

// getReader unwraps the response body according to Content-Encoding.
func getReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// normalize converts raw offers into a snapshot. Offers keep the platform's
// price order and are ranked 1..n in that order.
func normalize(productID string, raw []rawOffer, total int) *model.Snapshot {
	snapshot := &model.Snapshot{
		ProductID: productID,
		Offers:    make([]model.Offer, 0, len(raw)),
	}

	if len(raw) > 0 {
		first := raw[0]
		snapshot.Name = firstNonEmpty(first.ProductName, first.Name)
		snapshot.Category = firstNonEmpty(first.CategoryName, first.Category)
	}

	for i, r := range raw {
		rank := i + 1
		inStock := r.Preorder == 0
		snapshot.Offers = append(snapshot.Offers, model.Offer{
			Price:           r.Price,
			SellerID:        r.MerchantID,
			SellerName:      r.MerchantName,
			SellerRating:    r.MerchantRating,
			SellerReviews:   r.MerchantReviewsQuantity,
			RankInSample:    &rank,
			InStock:         &inStock,
			PriceMinusBonus: r.PriceMinusBonus,
			PurchaseCount:   r.PurchaseCount,
			DeliveryType:    r.DeliveryType,
		})
	}

	snapshot.Buckets = bucketsOf(snapshot.Prices(), len(snapshot.Offers), total)
	return snapshot
}

func bucketsOf(prices []float64, count, total int) model.PriceBuckets {
	buckets := model.PriceBuckets{
		TopSellersCount:   count,
		TotalSellersCount: total,
	}
	for i, p := range prices {
		if i == 0 || p < buckets.MinPrice {
			buckets.MinPrice = p
		}
		if i == 0 || p > buckets.MaxPrice {
			buckets.MaxPrice = p
		}
	}
	return buckets
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
