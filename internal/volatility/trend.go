package volatility

import (
	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
)

// TrendDeadZone is the slope magnitude below which a trend is stable.
const TrendDeadZone = 0.1

const (
	DirectionUp           = "up"
	DirectionDown         = "down"
	DirectionStable       = "stable"
	DirectionInsufficient = "insufficient_data"
)

// TrendResult describes where prices have been heading. Slope, SMA, EMA and
// ChangePercent are nil when fewer than two points are available.
type TrendResult struct {
	Direction     string   `json:"direction"`
	Slope         *float64 `json:"slope"`
	SMA           *float64 `json:"sma"`
	EMA           *float64 `json:"ema"`
	ChangePercent *float64 `json:"change_percent"`
	Points        int      `json:"points"`
}

// Trend fits a least-squares line to the last days points of history,
// indexed 0..n-1, and classifies its slope.
func Trend(history []model.PriceHistoryRecord, days int) TrendResult {
	prices := pricesOf(recent(history, days))
	n := len(prices)
	if n < 2 {
		return TrendResult{Direction: DirectionInsufficient, Points: n}
	}

	slope := Slope(prices)
	direction := DirectionStable
	if slope > TrendDeadZone {
		direction = DirectionUp
	} else if slope < -TrendDeadZone {
		direction = DirectionDown
	}

	sma := analysis.Mean(prices)

	// Seeded with the first price.
	alpha := 2 / float64(n+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = alpha*p + (1-alpha)*ema
	}

	var change float64
	if prices[0] > 0 {
		change = (prices[n-1] - prices[0]) / prices[0] * 100
	}

	return TrendResult{
		Direction:     direction,
		Slope:         &slope,
		SMA:           &sma,
		EMA:           &ema,
		ChangePercent: &change,
		Points:        n,
	}
}

// Slope is the ordinary least squares slope of values against their index.
func Slope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
