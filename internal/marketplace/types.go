package marketplace

import (
	"time"

	"github.com/guarzo/pricepos/internal/volatility"
)

// Heuristic weights and thresholds of the analyzers.
const (
	// Weighted rank
	WeightPriceRank   = 0.5
	WeightRating      = 0.3
	WeightReviews     = 0.2
	DefaultUserRating = 3.0
	UserPriceRank     = 0.5

	// Dominant sellers
	MissingRank        = 999
	TopRankCutoff      = 3
	MaxDominantSellers = 10

	// Demand proxy
	DemandSellersScale  = 10.0
	DemandUpdatesScale  = 100.0
	DemandReviewsScale  = 1000.0
	WeightDemandSellers = 0.3
	WeightDemandUpdates = 0.2
	WeightDemandReviews = 0.3
	WeightDemandRating  = 0.2
	CompetitionMediumAt = 5
	CompetitionHighOver = 10

	// Entry barrier
	WeightBarrierDensity   = 0.3
	WeightBarrierAvgRating = 0.3
	WeightBarrierTopRating = 0.2
	WeightBarrierStd       = 0.2
	BarrierStdScale        = 100.0
	BarrierHighOver        = 0.7
	BarrierMediumOver      = 0.4
	DenseClusterBelow      = 0.3
	StrongAvgRatingOver    = 4.5
	StrongTopRatingOver    = 4.8
	LowSpreadBelow         = 20.0

	// Optimal price
	DefaultTargetRank = 5
	DefaultMargin     = 0.10

	// Anomalies
	AnomalySigma        = 2.0
	AnomalyRecentPoints = 10
	MarketShiftWindow   = 30
	MarketShiftRatio    = 0.10

	MaxRating = 5.0
)

const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"
)

const (
	AnomalyPriceSpike  = "price_spike"
	AnomalyPriceDrop   = "price_drop"
	AnomalyMarketShift = "market_shift"
)

// Distribution describes the spread of current offer prices. Median and the
// quartiles are taken by index into the sorted prices.
type Distribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	IQR    float64 `json:"iqr"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
}

// Rank places a candidate price among current offers.
type Rank struct {
	Rank           int     `json:"rank"`
	Total          int     `json:"total"`
	Percentile     float64 `json:"percentile"`
	CheaperCount   int     `json:"cheaper_count"`
	ExpensiveCount int     `json:"expensive_count"`
	EqualCount     int     `json:"equal_count"`
}

// WeightedScore is one offer's composite competitiveness score. Lower is better.
type WeightedScore struct {
	SellerName string  `json:"seller_name"`
	Price      float64 `json:"price"`
	Rating     float64 `json:"rating"`
	Reviews    int     `json:"reviews"`
	PriceRank  int     `json:"price_rank"`
	Score      float64 `json:"score"`
}

type WeightedRanking struct {
	Scores    []WeightedScore `json:"scores"`
	UserScore *float64        `json:"user_score"`
	UserRank  *int            `json:"user_rank"`
}

type DominantSeller struct {
	SellerName     string  `json:"seller_name"`
	Frequency      int     `json:"frequency"`
	TopFrequency   int     `json:"top3_frequency"`
	AvgRank        float64 `json:"avg_position"`
	DominanceScore float64 `json:"dominance_score"`
}

type Demand struct {
	Score            float64 `json:"demand_score"`
	SellersCount     int     `json:"sellers_count"`
	PriceUpdates     int     `json:"price_updates_count"`
	ReviewsProxy     int     `json:"purchase_count_proxy"`
	AvgRating        float64 `json:"avg_rating"`
	CompetitionLevel string  `json:"competition_level"`
}

type EntryBarrier struct {
	Score        float64  `json:"barrier_score"`
	Level        string   `json:"level"`
	Factors      []string `json:"factors"`
	PriceDensity float64  `json:"price_density"`
	AvgRating    float64  `json:"avg_rating"`
	TopRating    float64  `json:"top_rating"`
	PriceStd     float64  `json:"price_std"`
}

type OptimalPrice struct {
	Price             float64 `json:"optimal_price"`
	EstimatedPosition int     `json:"estimated_position"`
	MarginPercent     float64 `json:"margin_percent"`
	MarginAmount      float64 `json:"margin_amount"`
	CostPrice         float64 `json:"cost_price"`
}

// Anomaly is a suspicious historical price or a shift of the whole market.
// At is zero for market shifts, which describe the current snapshot.
type Anomaly struct {
	Type      string    `json:"type"`
	At        time.Time `json:"date"`
	Price     float64   `json:"price"`
	Deviation float64   `json:"deviation"`
	Message   string    `json:"message"`
}

// Options tunes ComputeMarketAnalytics. Zero values fall back to defaults;
// a nil Margin means DefaultMargin, so an explicit zero margin is kept.
type Options struct {
	TargetRank     int
	Margin         *float64
	TrendDays      int
	ElasticityDays int
	UserRating     *float64
}

// DefaultOptions returns the defaults used by the API.
func DefaultOptions() Options {
	return Options{
		TargetRank:     DefaultTargetRank,
		TrendDays:      volatility.DefaultWindow,
		ElasticityDays: volatility.DefaultWindow,
	}
}

// MarketAnalytics bundles every analyzer's output for one product.
type MarketAnalytics struct {
	Distribution    *Distribution               `json:"distribution"`
	Rank            *Rank                       `json:"rank"`
	Elasticity      volatility.ElasticityResult `json:"elasticity"`
	WeightedRank    WeightedRanking             `json:"weighted_rank"`
	DominantSellers []DominantSeller            `json:"dominant_sellers"`
	Volatility      *volatility.Stats           `json:"volatility"`
	Trend           volatility.TrendResult      `json:"trend"`
	Demand          Demand                      `json:"demand_proxy"`
	EntryBarrier    EntryBarrier                `json:"entry_barrier"`
	OptimalPrice    *OptimalPrice               `json:"optimal_price"`
	Anomalies       []Anomaly                   `json:"anomalies"`
}
