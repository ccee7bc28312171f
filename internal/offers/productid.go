package offers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidProductURL is returned when no product id can be found in a URL.
var ErrInvalidProductURL = errors.New("cannot extract product id")

// minProductIDLength rejects short numbers such as storage sizes in slugs.
const minProductIDLength = 6

// Tried in order; the first match of sufficient length wins.
var productIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/shop/p/[^/]+/(\d+)`),
	regexp.MustCompile(`/shop/p/(\d+)`),
	regexp.MustCompile(`/product/(\d+)`),
	regexp.MustCompile(`/p/[^/]+/(\d+)`),
	regexp.MustCompile(`/p/(\d+)`),
	regexp.MustCompile(`/(\d{6,})`),
	regexp.MustCompile(`(\d{6,})`),
}

// ExtractProductID returns the marketplace product id embedded in a product
// URL. A bare id is accepted as well.
func ExtractProductID(rawURL string) (string, error) {
	cleaned := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	for _, pattern := range productIDPatterns {
		m := pattern.FindStringSubmatch(cleaned)
		if m != nil && len(m[1]) >= minProductIDLength {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w from URL: %s", ErrInvalidProductURL, rawURL)
}
