package marketplace

import (
	"math"
	"sort"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
)

// PriceDistribution summarizes current offer prices. It returns nil when no
// offer has a price.
func PriceDistribution(offers []model.Offer) *Distribution {
	prices := sortedPrices(offers)
	n := len(prices)
	if n == 0 {
		return nil
	}

	p25 := prices[int(float64(n)*0.25)]
	p75 := prices[int(float64(n)*0.75)]
	iqr := 0.0
	if n > 1 {
		iqr = p75 - p25
	}

	return &Distribution{
		Min:    prices[0],
		Max:    prices[n-1],
		Median: prices[n/2],
		P25:    p25,
		P75:    p75,
		IQR:    iqr,
		Mean:   analysis.Mean(prices),
		StdDev: analysis.SampleStdDev(prices),
	}
}

// PriceRank places price among current offers. The percentile is the share
// of offers strictly cheaper than price.
func PriceRank(price float64, offers []model.Offer) Rank {
	prices := sortedPrices(offers)
	if len(prices) == 0 {
		return Rank{Rank: 1, Total: 1}
	}

	var cheaper, expensive, equal int
	for _, p := range prices {
		switch {
		case p < price:
			cheaper++
		case p > price:
			expensive++
		default:
			equal++
		}
	}

	total := len(prices)
	return Rank{
		Rank:           cheaper + 1,
		Total:          total,
		Percentile:     float64(cheaper) / float64(total) * 100,
		CheaperCount:   cheaper,
		ExpensiveCount: expensive,
		EqualCount:     equal,
	}
}

// CalculateOptimalPrice returns the price of the targetRank-th cheapest offer
// and the cost price that leaves margin on it. The rank is clamped to the
// offers available. It returns nil when no offer has a price.
func CalculateOptimalPrice(offers []model.Offer, targetRank int, margin float64) *OptimalPrice {
	prices := sortedPrices(offers)
	if len(prices) == 0 {
		return nil
	}
	if targetRank < 1 {
		targetRank = 1
	}

	// A margin of -100% or less has no cost price; treat it as no margin.
	if math.IsNaN(margin) || math.IsInf(margin, 0) || 1+margin <= 0 {
		margin = 0
	}

	idx := min(targetRank-1, len(prices)-1)
	price := prices[idx]
	cost := price / (1 + margin)

	return &OptimalPrice{
		Price:             price,
		EstimatedPosition: idx + 1,
		MarginPercent:     margin * 100,
		MarginAmount:      price - cost,
		CostPrice:         cost,
	}
}

func sortedPrices(offers []model.Offer) []float64 {
	prices := make([]float64, 0, len(offers))
	for _, o := range offers {
		if o.HasPrice() {
			prices = append(prices, o.Price)
		}
	}
	sort.Float64s(prices)
	return prices
}
