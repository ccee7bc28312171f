package marketplace

import (
	"sort"
	"time"

	"github.com/guarzo/pricepos/internal/model"
)

// ScrapeWindow groups history records into one scrape: every record within
// this distance of the latest record of a day belongs to the latest scrape.
const ScrapeWindow = time.Hour

// DayPrices summarizes the last scrape of a day.
type DayPrices struct {
	Date        string                     `json:"date"`
	Offers      []model.PriceHistoryRecord `json:"offers"`
	MinPrice    float64                    `json:"min_price"`
	MaxPrice    float64                    `json:"max_price"`
	AvgPrice    float64                    `json:"avg_price"`
	MedianPrice float64                    `json:"median_price"`
	OffersCount int                        `json:"offers_count"`
	RecordedAt  time.Time                  `json:"recorded_at"`
}

// PriceChange is the move from the first day to the second, absolute and in
// percent of the first day's value.
type PriceChange struct {
	MinChange           float64 `json:"min_change"`
	MaxChange           float64 `json:"max_change"`
	AvgChange           float64 `json:"avg_change"`
	MedianChange        float64 `json:"median_change"`
	MinChangePercent    float64 `json:"min_change_percent"`
	MaxChangePercent    float64 `json:"max_change_percent"`
	AvgChangePercent    float64 `json:"avg_change_percent"`
	MedianChangePercent float64 `json:"median_change_percent"`
}

// PriceComparison holds both days; Change is set only when both have data.
type PriceComparison struct {
	Date1  *DayPrices   `json:"date1"`
	Date2  *DayPrices   `json:"date2"`
	Change *PriceChange `json:"price_change,omitempty"`
}

// SummarizeDay reduces the history of one day to its latest scrape. It
// returns nil when the day has no priced record.
func SummarizeDay(date time.Time, history []model.PriceHistoryRecord) *DayPrices {
	var latest time.Time
	for _, r := range history {
		if r.Price > 0 && r.RecordedAt.After(latest) {
			latest = r.RecordedAt
		}
	}
	if latest.IsZero() {
		return nil
	}

	var offers []model.PriceHistoryRecord
	for _, r := range history {
		if r.Price > 0 && latest.Sub(r.RecordedAt) < ScrapeWindow {
			offers = append(offers, r)
		}
	}
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].Price < offers[j].Price })

	n := len(offers)
	sum := 0.0
	for _, r := range offers {
		sum += r.Price
	}
	return &DayPrices{
		Date:     date.UTC().Format("2006-01-02"),
		Offers:   offers,
		MinPrice: offers[0].Price,
		MaxPrice: offers[n-1].Price,
		AvgPrice: sum / float64(n),
		// Upper middle, as in PriceDistribution.
		MedianPrice: offers[n/2].Price,
		OffersCount: n,
		RecordedAt:  latest,
	}
}

// ComparePrices compares the last scrapes of two days.
func ComparePrices(date1 time.Time, history1 []model.PriceHistoryRecord, date2 time.Time, history2 []model.PriceHistoryRecord) PriceComparison {
	c := PriceComparison{
		Date1: SummarizeDay(date1, history1),
		Date2: SummarizeDay(date2, history2),
	}
	if c.Date1 == nil || c.Date2 == nil {
		return c
	}
	a, b := c.Date1, c.Date2
	c.Change = &PriceChange{
		MinChange:           b.MinPrice - a.MinPrice,
		MaxChange:           b.MaxPrice - a.MaxPrice,
		AvgChange:           b.AvgPrice - a.AvgPrice,
		MedianChange:        b.MedianPrice - a.MedianPrice,
		MinChangePercent:    PercentChange(a.MinPrice, b.MinPrice),
		MaxChangePercent:    PercentChange(a.MaxPrice, b.MaxPrice),
		AvgChangePercent:    PercentChange(a.AvgPrice, b.AvgPrice),
		MedianChangePercent: PercentChange(a.MedianPrice, b.MedianPrice),
	}
	return c
}

// PercentChange returns the change from one value to another in percent of
// the first, or 0 when the first is not positive.
func PercentChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}
