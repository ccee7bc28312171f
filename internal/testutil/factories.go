package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/guarzo/pricepos/internal/model"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Offers builds unrated offers with the given prices, ranked by position in
// the argument list.
func Offers(prices ...float64) []model.Offer {
	offers := make([]model.Offer, len(prices))
	for i, p := range prices {
		offers[i] = model.Offer{
			Price:        p,
			SellerName:   fmt.Sprintf("seller-%d", i+1),
			RankInSample: Ptr(i + 1),
		}
	}
	return offers
}

// RatedOffer builds a fully populated offer.
func RatedOffer(seller string, price, rating float64, reviews, rank int) model.Offer {
	return model.Offer{
		Price:         price,
		SellerName:    seller,
		SellerRating:  Ptr(rating),
		SellerReviews: Ptr(reviews),
		RankInSample:  Ptr(rank),
		InStock:       Ptr(true),
	}
}

// History builds one record per price for a single seller, one hour apart
// starting at start.
func History(productID string, start time.Time, prices ...float64) []model.PriceHistoryRecord {
	records := make([]model.PriceHistoryRecord, len(prices))
	for i, p := range prices {
		records[i] = model.PriceHistoryRecord{
			ProductID:  productID,
			SellerName: "seller",
			Price:      p,
			RecordedAt: start.Add(time.Duration(i) * time.Hour),
		}
	}
	return records
}

// RankedHistory is History with a rank attached to every record.
func RankedHistory(productID string, start time.Time, prices []float64, ranks []int) []model.PriceHistoryRecord {
	records := History(productID, start, prices...)
	for i := range records {
		if i < len(ranks) {
			records[i].RankInSample = Ptr(ranks[i])
		}
	}
	return records
}

// TestDataFactory generates seeded random market data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// GenerateProductID generates a numeric marketplace product id
func (f *TestDataFactory) GenerateProductID() string {
	return fmt.Sprintf("%d", 100000000+f.rand.Intn(900000000))
}

// GenerateSellerName generates a random test seller name
func (f *TestDataFactory) GenerateSellerName() string {
	names := []string{"Test Alpha", "Test Bazar", "Test Mobile", "Test Store", "Test Tech"}
	return fmt.Sprintf("%s %d", names[f.rand.Intn(len(names))], f.rand.Intn(100))
}

// GeneratePrice generates a random price between 1000 and 501000, rounded to whole units
func (f *TestDataFactory) GeneratePrice() float64 {
	return math.Round(f.rand.Float64()*500000) + 1000
}

// GenerateRating generates a random seller rating between 3.0 and 5.0
func (f *TestDataFactory) GenerateRating() float64 {
	return math.Round((3+f.rand.Float64()*2)*10) / 10
}

// GenerateOffers generates n offers sorted by price with ranks 1..n
func (f *TestDataFactory) GenerateOffers(n int) []model.Offer {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = f.GeneratePrice()
	}
	sort.Float64s(prices)

	offers := make([]model.Offer, n)
	for i, p := range prices {
		offers[i] = RatedOffer(f.GenerateSellerName(), p, f.GenerateRating(), f.rand.Intn(5000), i+1)
	}
	return offers
}

// GenerateHistory generates n ranked records with prices wandering around base
func (f *TestDataFactory) GenerateHistory(productID string, n int, base float64) []model.PriceHistoryRecord {
	start := time.Now().UTC().Add(-time.Duration(n) * time.Hour)
	records := make([]model.PriceHistoryRecord, n)
	price := base
	for i := range records {
		price = math.Max(1, price+(f.rand.Float64()-0.5)*base*0.05)
		records[i] = model.PriceHistoryRecord{
			ProductID:    productID,
			SellerName:   f.GenerateSellerName(),
			Price:        math.Round(price),
			RankInSample: Ptr(f.rand.Intn(10) + 1),
			RecordedAt:   start.Add(time.Duration(i) * time.Hour),
		}
	}
	return records
}
