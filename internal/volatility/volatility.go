package volatility

import (
	"sort"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
)

// DefaultWindow is the number of most recent history points Trend and
// Elasticity look at when the caller passes no window.
const DefaultWindow = 14

// Stats describes how much historical prices move.
type Stats struct {
	StdDev                 float64 `json:"volatility"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"` // percent
	Range                  float64 `json:"price_range"`
	Min                    float64 `json:"min"`
	Max                    float64 `json:"max"`
	Mean                   float64 `json:"mean"`
}

// Volatility computes spread statistics over historical prices. It returns
// nil when fewer than two prices are present.
func Volatility(history []model.PriceHistoryRecord) *Stats {
	prices := pricesOf(history)
	if len(prices) < 2 {
		return nil
	}

	sorted := analysis.SortedCopy(prices)
	mean := analysis.Mean(sorted)
	std := analysis.SampleStdDev(sorted)

	var cv float64
	if mean > 0 {
		cv = std / mean * 100
	}

	return &Stats{
		StdDev:                 std,
		CoefficientOfVariation: cv,
		Range:                  sorted[len(sorted)-1] - sorted[0],
		Min:                    sorted[0],
		Max:                    sorted[len(sorted)-1],
		Mean:                   mean,
	}
}

// Chronological returns a copy of history ordered by RecordedAt. Records
// with equal timestamps keep their input order.
func Chronological(history []model.PriceHistoryRecord) []model.PriceHistoryRecord {
	sorted := make([]model.PriceHistoryRecord, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})
	return sorted
}

// recent returns the last n records of history in chronological order.
func recent(history []model.PriceHistoryRecord, n int) []model.PriceHistoryRecord {
	if n <= 0 {
		n = DefaultWindow
	}
	sorted := Chronological(history)
	if len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}

func pricesOf(history []model.PriceHistoryRecord) []float64 {
	prices := make([]float64, 0, len(history))
	for _, r := range history {
		if r.Price > 0 {
			prices = append(prices, r.Price)
		}
	}
	return prices
}
