package model

import "time"

type Product struct {
	ID         string    `json:"id" db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Name       string    `json:"name" db:"name"`
	Category   string    `json:"category" db:"category"`
	CreatedAt  time.Time `json:"created_at" db:"-"`
	UpdatedAt  time.Time `json:"updated_at" db:"-"`
}

// Offer is one competing listing observed in a snapshot.
// A Price <= 0 means the price was missing from the source.
type Offer struct {
	Price         float64  `json:"price"`
	SellerID      string   `json:"seller_id,omitempty"`
	SellerName    string   `json:"seller_name"`
	SellerRating  *float64 `json:"seller_rating,omitempty"`  // 0-5, may be nil
	SellerReviews *int     `json:"seller_reviews,omitempty"` // may be nil
	RankInSample  *int     `json:"rank_in_sample,omitempty"` // 1-based within the observed top-N
	InStock       *bool    `json:"in_stock,omitempty"`

	PriceMinusBonus *float64 `json:"price_minus_bonus,omitempty"`
	PurchaseCount   int      `json:"purchase_count,omitempty"`
	DeliveryType    string   `json:"delivery_type,omitempty"`
}

// HasPrice reports whether the offer carries a usable price.
func (o Offer) HasPrice() bool {
	return o.Price > 0
}

// Rating returns the seller rating or 0 when unrated.
func (o Offer) Rating() float64 {
	if o.SellerRating == nil {
		return 0
	}
	return *o.SellerRating
}

// Reviews returns the seller review count or 0 when unknown.
func (o Offer) Reviews() int {
	if o.SellerReviews == nil {
		return 0
	}
	return *o.SellerReviews
}

// Rank returns the rank within the sample, or fallback when absent.
func (o Offer) Rank(fallback int) int {
	if o.RankInSample == nil {
		return fallback
	}
	return *o.RankInSample
}

// Available treats a missing stock flag as in stock.
func (o Offer) Available() bool {
	return o.InStock == nil || *o.InStock
}

// PriceHistoryRecord is an append-only price observation.
type PriceHistoryRecord struct {
	ProductID    string    `json:"product_id"`
	SellerName   string    `json:"seller_name"`
	Price        float64   `json:"price"`
	RankInSample *int      `json:"rank_in_sample,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Rank returns the recorded rank, or fallback when absent.
func (r PriceHistoryRecord) Rank(fallback int) int {
	if r.RankInSample == nil {
		return fallback
	}
	return *r.RankInSample
}

// PriceBuckets summarizes a scrape. TotalSellersCount is the platform's own
// claim and is 0 when the platform did not report one.
type PriceBuckets struct {
	MinPrice          float64 `json:"min_price"`
	MaxPrice          float64 `json:"max_price"`
	TopSellersCount   int     `json:"top_sellers_count"`
	TotalSellersCount int     `json:"total_sellers_count"`
}

// Snapshot is the normalized result of one scrape of a product.
type Snapshot struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Category  string       `json:"category"`
	Offers    []Offer      `json:"offers"`
	Buckets   PriceBuckets `json:"buckets"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Prices returns the usable prices of the snapshot in offer order.
func (s *Snapshot) Prices() []float64 {
	prices := make([]float64, 0, len(s.Offers))
	for _, o := range s.Offers {
		if o.HasPrice() {
			prices = append(prices, o.Price)
		}
	}
	return prices
}

// DataSource tags where a position estimate came from.
type DataSource string

const (
	DataSourceExact       DataSource = "exact"
	DataSourceSample      DataSource = "sample"
	DataSourceDegenerate  DataSource = "degenerate"  // no market data
	DataSourceUnavailable DataSource = "unavailable" // the snapshot fetch failed
)

type PositionEstimate struct {
	InputPrice        float64    `json:"input_price"`
	EstimatedPosition int        `json:"estimated_position"`
	TotalSellers      int        `json:"total_sellers"`
	Percentile        float64    `json:"percentile"`
	DataSource        DataSource `json:"data_source"`
}

// AnalyticsDailyRecord is the per product, per day rollup.
type AnalyticsDailyRecord struct {
	ProductID             string    `json:"product_id"`
	Date                  time.Time `json:"date"`
	MinPrice              *float64  `json:"min_price"`
	MaxPrice              *float64  `json:"max_price"`
	AvgPrice              *float64  `json:"avg_price"`
	MedianPrice           *float64  `json:"median_price"`
	PriceStd              *float64  `json:"price_std"`
	OffersCount           int       `json:"offers_count"`
	SellersCount          int       `json:"sellers_count"`
	TopSellersCount       int       `json:"top_sellers_count"`
	EstimatedTotalSellers int       `json:"estimated_total_sellers"`
	PricePosition1        *float64  `json:"price_position_1"`
	PricePosition3        *float64  `json:"price_position_3"`
	PricePosition5        *float64  `json:"price_position_5"`
	PricePosition10       *float64  `json:"price_position_10"`
	AvgSellerRating       *float64  `json:"avg_seller_rating"`
	InStockCount          int       `json:"in_stock_count"`
	DeltaPrice            *float64  `json:"delta_price"`
	DeltaPercent          *float64  `json:"delta_percent"`
	SellersDelta          int       `json:"sellers_delta"`
	UpdatedAt             time.Time `json:"updated_at"`
}
