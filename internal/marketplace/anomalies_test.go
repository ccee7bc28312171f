package marketplace

import (
	"testing"
	"time"

	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/testutil"
)

var historyStart = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func TestDetectAnomalies_Spike(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 500}
	history := testutil.History("p1", historyStart, prices...)

	got := DetectAnomalies(history, nil)
	if len(got) != 1 {
		t.Fatalf("got %d anomalies, want 1: %+v", len(got), got)
	}
	if got[0].Type != AnomalyPriceSpike || got[0].Price != 500 {
		t.Errorf("anomaly = %+v, want price_spike at 500", got[0])
	}
	if !got[0].At.Equal(history[9].RecordedAt) {
		t.Errorf("At = %v, want %v", got[0].At, history[9].RecordedAt)
	}
	if got[0].Deviation <= AnomalySigma {
		t.Errorf("Deviation = %v, want > %v", got[0].Deviation, AnomalySigma)
	}
}

func TestDetectAnomalies_Drop(t *testing.T) {
	prices := []float64{500, 500, 500, 500, 500, 500, 500, 500, 500, 100}
	got := DetectAnomalies(testutil.History("p1", historyStart, prices...), nil)
	if len(got) != 1 || got[0].Type != AnomalyPriceDrop {
		t.Errorf("DetectAnomalies() = %+v, want one price_drop", got)
	}
}

func TestDetectAnomalies_OnlyRecentPoints(t *testing.T) {
	// The outlier is the first of 15 points, outside the last 10.
	prices := []float64{900}
	for i := 0; i < 14; i++ {
		prices = append(prices, 100)
	}
	got := DetectAnomalies(testutil.History("p1", historyStart, prices...), nil)
	if len(got) != 0 {
		t.Errorf("DetectAnomalies() = %+v, want none", got)
	}
}

func TestDetectAnomalies_MarketShift(t *testing.T) {
	history := testutil.History("p1", historyStart, 100, 100, 100)

	got := DetectAnomalies(history, testutil.Offers(150, 150))
	if len(got) != 1 || got[0].Type != AnomalyMarketShift {
		t.Fatalf("DetectAnomalies() = %+v, want one market_shift", got)
	}
	if got[0].Price != 150 || got[0].Deviation != 0.5 {
		t.Errorf("market shift = %+v, want price 150 deviation 0.5", got[0])
	}
	if !got[0].At.IsZero() {
		t.Errorf("At = %v, want zero", got[0].At)
	}

	if got := DetectAnomalies(history, testutil.Offers(105)); len(got) != 0 {
		t.Errorf("5%% move flagged: %+v", got)
	}
}

func TestDetectAnomalies_InsufficientHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []model.PriceHistoryRecord
	}{
		{"none", nil},
		{"two points", testutil.History("p1", historyStart, 100, 500)},
		{"unpriced points do not count", testutil.History("p1", historyStart, 100, 0, 500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAnomalies(tt.history, testutil.Offers(1000))
			if got == nil || len(got) != 0 {
				t.Errorf("DetectAnomalies() = %#v, want empty list", got)
			}
		})
	}
}

func TestDetectAnomalies_UnorderedHistory(t *testing.T) {
	history := testutil.History("p1", historyStart, 100, 100, 100, 100, 100, 100, 100, 100, 100, 500)
	// Reverse: the spike is still the most recent point by timestamp.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	got := DetectAnomalies(history, nil)
	if len(got) != 1 || got[0].Type != AnomalyPriceSpike {
		t.Errorf("DetectAnomalies() = %+v, want one price_spike", got)
	}
}
