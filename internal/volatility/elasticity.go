package volatility

import (
	"math"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
)

// ElasticityResult is a finite-difference proxy for how rank responds to
// price: average rank change divided by average price change between
// consecutive ranked points. It is not a true elasticity.
type ElasticityResult struct {
	Elasticity     *float64 `json:"elasticity"`
	Sensitivity    *float64 `json:"sensitivity"`
	AvgPriceChange *float64 `json:"avg_price_change_per_unit"`
	AvgRankChange  *float64 `json:"avg_position_change_per_unit"`
	Points         int      `json:"points"`
}

// Elasticity looks at the last days points of history that carry a rank.
// Elasticity is nil with fewer than two ranked points or when the average
// price change is zero.
func Elasticity(history []model.PriceHistoryRecord, days int) ElasticityResult {
	var prices, ranks []float64
	for _, r := range recent(history, days) {
		if r.RankInSample == nil {
			continue
		}
		prices = append(prices, r.Price)
		ranks = append(ranks, float64(*r.RankInSample))
	}

	result := ElasticityResult{Points: len(prices)}
	if len(prices) < 2 {
		return result
	}

	avgPrice := analysis.Mean(diffs(prices))
	avgRank := analysis.Mean(diffs(ranks))
	result.AvgPriceChange = &avgPrice
	result.AvgRankChange = &avgRank

	if avgPrice == 0 {
		return result
	}

	e := avgRank / avgPrice
	sensitivity := math.Abs(e)
	result.Elasticity = &e
	result.Sensitivity = &sensitivity
	return result
}

func diffs(values []float64) []float64 {
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, values[i]-values[i-1])
	}
	return out
}
