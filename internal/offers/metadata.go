package offers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMetadata is what the product page says about a product.
type PageMetadata struct {
	Name     string
	Category string
}

// FetchPageMetadata reads the product name and category from the HTML
// product page.
func (c *Client) FetchPageMetadata(ctx context.Context, productID string) (*PageMetadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.productURL(productID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.AddCookie(&http.Cookie{Name: cityCookie, Value: c.config.CityID})

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	reader, err := getReader(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing product page: %w", err)
	}

	meta := parsePageMetadata(doc)
	if meta.Name == "" {
		return nil, fmt.Errorf("no product name on page for %s", productID)
	}
	return meta, nil
}

func parsePageMetadata(doc *goquery.Document) *PageMetadata {
	meta := &PageMetadata{}

	if content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		meta.Name = strings.TrimSpace(content)
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if content, ok := doc.Find(`meta[itemprop="category"]`).First().Attr("content"); ok {
		meta.Category = strings.TrimSpace(content)
	}
	if meta.Category == "" {
		// Breadcrumb links stop at the most specific category.
		var crumbs []string
		doc.Find(".breadcrumbs a, nav[aria-label='breadcrumb'] a").Each(func(i int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				crumbs = append(crumbs, text)
			}
		})
		if len(crumbs) > 0 {
			meta.Category = crumbs[len(crumbs)-1]
		}
	}

	return meta
}
