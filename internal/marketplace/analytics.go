package marketplace

import (
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/volatility"
)

// ComputeMarketAnalytics runs every analyzer over the current offers and
// price history of a product. Rank and the user's weighted score are only
// computed when targetPrice is set.
func ComputeMarketAnalytics(offers []model.Offer, history []model.PriceHistoryRecord, targetPrice *float64, opts Options) MarketAnalytics {
	if opts.TargetRank <= 0 {
		opts.TargetRank = DefaultTargetRank
	}
	margin := DefaultMargin
	if opts.Margin != nil {
		margin = *opts.Margin
	}

	result := MarketAnalytics{
		Distribution:    PriceDistribution(offers),
		Elasticity:      volatility.Elasticity(history, opts.ElasticityDays),
		WeightedRank:    WeightedRank(offers, targetPrice, opts.UserRating),
		DominantSellers: DominantSellers(offers, history),
		Volatility:      volatility.Volatility(history),
		Trend:           volatility.Trend(history, opts.TrendDays),
		Demand:          DemandProxy(offers, history),
		EntryBarrier:    CalculateEntryBarrier(offers),
		OptimalPrice:    CalculateOptimalPrice(offers, opts.TargetRank, margin),
		Anomalies:       DetectAnomalies(history, offers),
	}
	if targetPrice != nil {
		rank := PriceRank(*targetPrice, offers)
		result.Rank = &rank
	}
	return result
}
