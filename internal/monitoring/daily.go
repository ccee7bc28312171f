package monitoring

import (
	"time"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/position"
	"github.com/guarzo/pricepos/internal/storage"
)

// BuildDailyRecord rolls one day of offers up into an analytics record.
// buckets and previous are optional. Without buckets the seller total is
// estimated from the offer count.
func BuildDailyRecord(productID string, date time.Time, offers []model.Offer, buckets *model.PriceBuckets, previous *model.AnalyticsDailyRecord) model.AnalyticsDailyRecord {
	stats := analysis.ComputeStatistics(offers)

	rec := model.AnalyticsDailyRecord{
		ProductID:    productID,
		Date:         storage.Day(date),
		MinPrice:     stats.Min,
		MaxPrice:     stats.Max,
		AvgPrice:     stats.Mean,
		MedianPrice:  stats.Median,
		PriceStd:     stats.StdDev,
		OffersCount:  len(offers),
		SellersCount: distinctSellers(offers),
		InStockCount: inStock(offers),
	}

	rec.TopSellersCount = len(offers)
	rec.EstimatedTotalSellers = len(offers) * position.UnknownTotalMultiplier
	if buckets != nil {
		rec.TopSellersCount = buckets.TopSellersCount
		if buckets.TotalSellersCount > 0 {
			rec.EstimatedTotalSellers = buckets.TotalSellersCount
		}
	}

	sorted := make([]float64, 0, len(offers))
	for _, o := range offers {
		if o.HasPrice() {
			sorted = append(sorted, o.Price)
		}
	}
	sorted = analysis.SortedCopy(sorted)
	rec.PricePosition1 = priceAt(sorted, 1)
	rec.PricePosition3 = priceAt(sorted, 3)
	rec.PricePosition5 = priceAt(sorted, 5)
	rec.PricePosition10 = priceAt(sorted, 10)

	rec.AvgSellerRating = averageRating(offers)

	if previous != nil {
		if previous.AvgPrice != nil && *previous.AvgPrice > 0 && rec.AvgPrice != nil {
			delta := *rec.AvgPrice - *previous.AvgPrice
			pct := delta / *previous.AvgPrice * 100
			rec.DeltaPrice = &delta
			rec.DeltaPercent = &pct
		}
		if previous.SellersCount > 0 {
			rec.SellersDelta = rec.SellersCount - previous.SellersCount
		}
	}

	return rec
}

// priceAt returns the price at a 1-based position of an ascending list.
func priceAt(sorted []float64, pos int) *float64 {
	if pos > len(sorted) {
		return nil
	}
	p := sorted[pos-1]
	return &p
}

// distinctSellers counts sellers by id, falling back to name.
func distinctSellers(offers []model.Offer) int {
	seen := make(map[string]struct{}, len(offers))
	for _, o := range offers {
		key := o.SellerID
		if key == "" {
			key = o.SellerName
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func inStock(offers []model.Offer) int {
	n := 0
	for _, o := range offers {
		if o.Available() {
			n++
		}
	}
	return n
}

func averageRating(offers []model.Offer) *float64 {
	var ratings []float64
	for _, o := range offers {
		if o.SellerRating != nil {
			ratings = append(ratings, *o.SellerRating)
		}
	}
	if len(ratings) == 0 {
		return nil
	}
	avg := analysis.Mean(ratings)
	return &avg
}
