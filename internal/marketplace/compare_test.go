package marketplace

import (
	"math"
	"testing"
	"time"

	"github.com/guarzo/pricepos/internal/model"
)

func scrape(at time.Time, prices ...float64) []model.PriceHistoryRecord {
	records := make([]model.PriceHistoryRecord, len(prices))
	for i, p := range prices {
		records[i] = model.PriceHistoryRecord{ProductID: "p1", SellerName: "seller", Price: p, RecordedAt: at.Add(time.Duration(i) * time.Second)}
	}
	return records
}

func TestSummarizeDay_LatestScrapeOnly(t *testing.T) {
	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	history := append(scrape(day.Add(2*time.Hour), 10, 20), scrape(day.Add(9*time.Hour), 300, 100, 200, 0)...)

	got := SummarizeDay(day, history)
	if got == nil {
		t.Fatal("SummarizeDay() = nil")
	}
	if got.Date != "2026-03-05" || got.OffersCount != 3 {
		t.Errorf("date/count = %s/%d, want 2026-03-05/3", got.Date, got.OffersCount)
	}
	if got.MinPrice != 100 || got.MaxPrice != 300 || got.AvgPrice != 200 || got.MedianPrice != 200 {
		t.Errorf("summary = %+v", got)
	}
	if got.Offers[0].Price != 100 || got.Offers[2].Price != 300 {
		t.Errorf("offers not sorted by price: %+v", got.Offers)
	}
	if !got.RecordedAt.Equal(day.Add(9*time.Hour + 2*time.Second)) {
		t.Errorf("RecordedAt = %v", got.RecordedAt)
	}
}

func TestSummarizeDay_Empty(t *testing.T) {
	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := SummarizeDay(day, nil); got != nil {
		t.Errorf("SummarizeDay(nil) = %+v, want nil", got)
	}
	if got := SummarizeDay(day, scrape(day, 0, 0)); got != nil {
		t.Errorf("SummarizeDay(unpriced) = %+v, want nil", got)
	}
}

func TestComparePrices(t *testing.T) {
	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	got := ComparePrices(d1, scrape(d1.Add(time.Hour), 100, 200, 300), d2, scrape(d2.Add(time.Hour), 90, 180, 330))
	if got.Date1 == nil || got.Date2 == nil || got.Change == nil {
		t.Fatalf("ComparePrices() = %+v", got)
	}
	c := got.Change
	if c.MinChange != -10 || c.MaxChange != 30 || c.AvgChange != 0 || c.MedianChange != -20 {
		t.Errorf("absolute changes = %+v", c)
	}
	if math.Abs(c.MinChangePercent+10) > 1e-9 || math.Abs(c.MaxChangePercent-10) > 1e-9 || c.AvgChangePercent != 0 {
		t.Errorf("percent changes = %+v", c)
	}

	missing := ComparePrices(d1, scrape(d1, 100), d2, nil)
	if missing.Date1 == nil || missing.Date2 != nil || missing.Change != nil {
		t.Errorf("ComparePrices() with a missing day = %+v", missing)
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		from, to, want float64
	}{
		{100, 150, 50},
		{200, 100, -50},
		{0, 100, 0},
		{-5, 100, 0},
	}
	for _, tt := range tests {
		if got := PercentChange(tt.from, tt.to); got != tt.want {
			t.Errorf("PercentChange(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
