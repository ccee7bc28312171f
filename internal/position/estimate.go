package position

import (
	"math"
	"sort"
	"time"

	"github.com/guarzo/pricepos/internal/model"
)

const (
	// UnknownTotalMultiplier scales the sample size into a seller total when
	// the platform reports none and the price falls outside the sample.
	UnknownTotalMultiplier = 4

	// ExactCacheTTL bounds how long an uncapped price list is trusted.
	ExactCacheTTL = 10 * time.Minute
)

// ExactSnapshot is the full sorted price list of a product and its true
// seller total, as cached for exact mode.
type ExactSnapshot struct {
	Prices       []float64 `json:"prices"`
	TotalSellers int       `json:"total_sellers"`
	CachedAt     time.Time `json:"cached_at"`
}

// Degenerate is the estimate returned when nothing is known about the market.
func Degenerate(price float64, source model.DataSource) model.PositionEstimate {
	return model.PositionEstimate{
		InputPrice:        price,
		EstimatedPosition: 1,
		TotalSellers:      1,
		Percentile:        0,
		DataSource:        source,
	}
}

// Estimate picks exact mode when a cached price list is available, sample
// mode when offers are, and the degenerate estimate otherwise.
func Estimate(price float64, offers []model.Offer, platformTotal int, cached *ExactSnapshot) model.PositionEstimate {
	if cached != nil && len(cached.Prices) > 0 {
		return EstimateExact(price, cached.Prices, cached.TotalSellers)
	}
	return EstimateFromSample(price, offers, platformTotal)
}

// EstimateExact ranks price against the complete price list of a product.
// Equal prices are not counted as cheaper. A price above every known price
// is placed among the unseen sellers in proportion to how far it sits past
// the spread of the known prices.
func EstimateExact(price float64, prices []float64, total int) model.PositionEstimate {
	if len(prices) == 0 {
		return Degenerate(price, model.DataSourceDegenerate)
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	n := len(sorted)
	if total < n {
		total = n
	}
	minPrice, maxPrice := sorted[0], sorted[n-1]

	var pos int
	switch {
	case price < minPrice:
		pos = 1
	case price > maxPrice:
		spread := maxPrice - minPrice
		if total > n && spread > 0 {
			additional := int(math.Floor((price - maxPrice) / spread * float64(total-n)))
			pos = min(n+additional+1, total)
		} else {
			pos = total + 1
		}
	default:
		pos = cheaperThan(sorted, price) + 1
	}

	return finish(price, pos, total, model.DataSourceExact)
}

// EstimateFromSample ranks price against a capped top-N sample and infers
// the seller total from the platform's claim, the sample size and the
// naive in-sample rank.
func EstimateFromSample(price float64, offers []model.Offer, platformTotal int) model.PositionEstimate {
	prices := make([]float64, 0, len(offers))
	for _, o := range offers {
		if o.HasPrice() {
			prices = append(prices, o.Price)
		}
	}
	if len(prices) == 0 {
		return Degenerate(price, model.DataSourceDegenerate)
	}
	sort.Float64s(prices)

	n := len(prices)
	naive := cheaperThan(prices, price) + 1
	below := price < prices[0]
	above := price > prices[n-1]

	total := InferTotal(n, naive, platformTotal, below || above)

	var pos int
	switch {
	case below:
		pos = 1
	case above:
		pos = total
	case total > n:
		pos = 1 + int(math.Round(float64(naive-1)/float64(n)*float64(total-1)))
	default:
		pos = naive
	}

	return finish(price, pos, total, model.DataSourceSample)
}

// InferTotal estimates the full seller population from a sample of size n.
func InferTotal(n, naive, platformTotal int, outsideRange bool) int {
	if platformTotal > 0 {
		return max(platformTotal, n, naive)
	}
	if outsideRange {
		return n * UnknownTotalMultiplier
	}
	return max(n, naive)
}

// Percentile is the share of the population priced at or above position.
func Percentile(position, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(total-position+1) / float64(total) * 100
	return math.Max(0, math.Min(100, p))
}

func finish(price float64, pos, total int, source model.DataSource) model.PositionEstimate {
	if total < 1 {
		total = 1
	}
	pos = max(1, min(pos, total))
	return model.PositionEstimate{
		InputPrice:        price,
		EstimatedPosition: pos,
		TotalSellers:      total,
		Percentile:        Percentile(pos, total),
		DataSource:        source,
	}
}

// cheaperThan counts sorted prices strictly below price.
func cheaperThan(sorted []float64, price float64) int {
	return sort.SearchFloat64s(sorted, price)
}
