package marketplace

import (
	"fmt"
	"math"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/volatility"
)

// DetectAnomalies flags recent historical prices more than AnomalySigma
// standard deviations from the historical mean, and a market shift when the
// current average offer price moved more than MarketShiftRatio away from
// the trailing historical average. Fewer than three historical prices yield
// no anomalies.
func DetectAnomalies(history []model.PriceHistoryRecord, offers []model.Offer) []Anomaly {
	anomalies := []Anomaly{}

	ordered := volatility.Chronological(history)
	priced := ordered[:0:0]
	for _, r := range ordered {
		if r.Price > 0 {
			priced = append(priced, r)
		}
	}
	if len(priced) < 3 {
		return anomalies
	}

	prices := make([]float64, len(priced))
	for i, r := range priced {
		prices[i] = r.Price
	}
	mean := analysis.Mean(prices)
	std := analysis.SampleStdDev(prices)

	start := max(0, len(priced)-AnomalyRecentPoints)
	if std > 0 {
		for _, r := range priced[start:] {
			diff := math.Abs(r.Price - mean)
			if diff <= AnomalySigma*std {
				continue
			}
			kind, verb := AnomalyPriceSpike, "rise"
			if r.Price < mean {
				kind, verb = AnomalyPriceDrop, "drop"
			}
			anomalies = append(anomalies, Anomaly{
				Type:      kind,
				At:        r.RecordedAt,
				Price:     r.Price,
				Deviation: diff / std,
				Message:   fmt.Sprintf("Sharp price %s of %.2f", verb, diff),
			})
		}
	}

	current := sortedPrices(offers)
	if len(current) == 0 {
		return anomalies
	}
	currentAvg := analysis.Mean(current)
	trailing := prices[max(0, len(prices)-MarketShiftWindow):]
	historicalAvg := analysis.Mean(trailing)
	if historicalAvg <= 0 {
		return anomalies
	}

	shift := math.Abs(currentAvg - historicalAvg)
	if shift > historicalAvg*MarketShiftRatio {
		anomalies = append(anomalies, Anomaly{
			Type:      AnomalyMarketShift,
			Price:     currentAvg,
			Deviation: shift / historicalAvg,
			Message:   fmt.Sprintf("Average market price moved by %.2f (%.1f%%)", shift, shift/historicalAvg*100),
		})
	}

	return anomalies
}
