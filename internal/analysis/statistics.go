package analysis

import (
	"math"
	"sort"

	"github.com/guarzo/pricepos/internal/model"
)

// Statistics summarizes the priced offers of a snapshot. Every field is nil
// when no offer carries a price.
type Statistics struct {
	Count  int      `json:"count"`
	Min    *float64 `json:"min_price"`
	Max    *float64 `json:"max_price"`
	Mean   *float64 `json:"avg_price"`
	Median *float64 `json:"median_price"`
	StdDev *float64 `json:"price_std"`
}

// ComputeStatistics calculates min, max, mean, median and sample standard
// deviation over offers that have a price.
func ComputeStatistics(offers []model.Offer) Statistics {
	prices := make([]float64, 0, len(offers))
	for _, o := range offers {
		if o.HasPrice() {
			prices = append(prices, o.Price)
		}
	}
	return StatisticsOf(prices)
}

// StatisticsOf is ComputeStatistics over raw prices.
func StatisticsOf(prices []float64) Statistics {
	if len(prices) == 0 {
		return Statistics{}
	}

	sorted := SortedCopy(prices)
	minPrice := sorted[0]
	maxPrice := sorted[len(sorted)-1]
	mean := Mean(sorted)
	median := Median(sorted)
	std := SampleStdDev(sorted)

	return Statistics{
		Count:  len(sorted),
		Min:    &minPrice,
		Max:    &maxPrice,
		Mean:   &mean,
		Median: &median,
		StdDev: &std,
	}
}

// SortedCopy returns an ascending copy of values.
func SortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median expects sorted input. Even counts average the two middle values.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// SampleStdDev returns the sample standard deviation (n-1 denominator).
// Fewer than two values yield 0.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var varianceSum float64
	for _, v := range values {
		diff := v - mean
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum / float64(len(values)-1))
}

// Round2 rounds to two decimal places.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
