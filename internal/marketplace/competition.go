package marketplace

import (
	"math"
	"sort"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
)

// WeightedRank scores every priced offer on price rank, seller rating and
// review count. Lower scores are more competitive. When userPrice is set the
// caller's own score and rank among the offers are reported; the caller has
// no reviews and sits mid-pack on price.
func WeightedRank(offers []model.Offer, userPrice, userRating *float64) WeightedRanking {
	prices := sortedPrices(offers)
	n := len(prices)

	scores := make([]WeightedScore, 0, n)
	for _, o := range offers {
		if !o.HasPrice() {
			continue
		}
		// Ties share the rank of their first occurrence.
		priceRank := sort.SearchFloat64s(prices, o.Price) + 1
		rating := o.Rating()
		reviews := o.Reviews()

		score := WeightPriceRank*float64(priceRank)/float64(n) +
			WeightRating*ratingTerm(rating) +
			WeightReviews*reviewTerm(reviews)

		scores = append(scores, WeightedScore{
			SellerName: o.SellerName,
			Price:      o.Price,
			Rating:     rating,
			Reviews:    reviews,
			PriceRank:  priceRank,
			Score:      score,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score < scores[j].Score
	})

	ranking := WeightedRanking{Scores: scores}
	if userPrice == nil {
		return ranking
	}

	rating := DefaultUserRating
	if userRating != nil && *userRating > 0 {
		rating = *userRating
	}
	userScore := WeightPriceRank*UserPriceRank + WeightRating*(MaxRating-rating)/MaxRating

	rank := 1
	for _, s := range scores {
		if s.Score < userScore {
			rank++
		}
	}
	ranking.UserScore = &userScore
	ranking.UserRank = &rank
	return ranking
}

// ratingTerm maps a 0-5 rating to [0, 1] where better ratings score lower.
// Unrated sellers score 1.
func ratingTerm(rating float64) float64 {
	if rating <= 0 {
		return 1
	}
	return clamp01((MaxRating - rating) / MaxRating)
}

// reviewTerm maps a review count to [0, 1] on a log scale where more reviews
// score lower. Sellers without reviews score 1.
func reviewTerm(reviews int) float64 {
	if reviews <= 0 {
		return 1
	}
	return 1 - math.Min(math.Log(float64(reviews)+1)/10, 1)
}

// DominantSellers ranks sellers by how often they hold a top-3 rank across
// current offers and history, normalized by the number of current offers.
// Missing ranks count as MissingRank.
func DominantSellers(offers []model.Offer, history []model.PriceHistoryRecord) []DominantSeller {
	if len(offers) == 0 {
		return []DominantSeller{}
	}

	type tally struct {
		count int
		top   int
		ranks []int
	}
	stats := make(map[string]*tally)
	get := func(name string) *tally {
		t, ok := stats[name]
		if !ok {
			t = &tally{}
			stats[name] = t
		}
		return t
	}

	for _, o := range offers {
		t := get(o.SellerName)
		rank := o.Rank(MissingRank)
		t.count++
		t.ranks = append(t.ranks, rank)
		if rank <= TopRankCutoff {
			t.top++
		}
	}
	for _, r := range history {
		t := get(r.SellerName)
		rank := r.Rank(MissingRank)
		t.ranks = append(t.ranks, rank)
		if rank <= TopRankCutoff {
			t.top++
		}
	}

	dominant := make([]DominantSeller, 0, len(stats))
	for name, t := range stats {
		var sum int
		for _, r := range t.ranks {
			sum += r
		}
		dominant = append(dominant, DominantSeller{
			SellerName:     name,
			Frequency:      t.count,
			TopFrequency:   t.top,
			AvgRank:        float64(sum) / float64(len(t.ranks)),
			DominanceScore: float64(t.top) / float64(len(offers)),
		})
	}

	sort.Slice(dominant, func(i, j int) bool {
		if dominant[i].DominanceScore != dominant[j].DominanceScore {
			return dominant[i].DominanceScore > dominant[j].DominanceScore
		}
		return dominant[i].SellerName < dominant[j].SellerName
	})

	if len(dominant) > MaxDominantSellers {
		dominant = dominant[:MaxDominantSellers]
	}
	return dominant
}

// DemandProxy estimates demand from seller count, update frequency, review
// volume and average rating.
func DemandProxy(offers []model.Offer, history []model.PriceHistoryRecord) Demand {
	sellers := make(map[string]struct{})
	var reviews int
	var ratings []float64
	for _, o := range offers {
		sellers[o.SellerName] = struct{}{}
		reviews += o.Reviews()
		if o.Rating() > 0 {
			ratings = append(ratings, o.Rating())
		}
	}
	avgRating := analysis.Mean(ratings)

	score := WeightDemandSellers*clamp01(float64(len(sellers))/DemandSellersScale) +
		WeightDemandUpdates*clamp01(float64(len(history))/DemandUpdatesScale) +
		WeightDemandReviews*clamp01(float64(reviews)/DemandReviewsScale) +
		WeightDemandRating*clamp01(avgRating/MaxRating)

	return Demand{
		Score:            score,
		SellersCount:     len(sellers),
		PriceUpdates:     len(history),
		ReviewsProxy:     reviews,
		AvgRating:        avgRating,
		CompetitionLevel: CompetitionLevel(len(sellers)),
	}
}

// CompetitionLevel buckets a distinct seller count.
func CompetitionLevel(sellers int) string {
	switch {
	case sellers > CompetitionHighOver:
		return LevelHigh
	case sellers >= CompetitionMediumAt:
		return LevelMedium
	default:
		return LevelLow
	}
}

// CalculateEntryBarrier scores how hard it is for a new seller to compete:
// clustered prices, strong incumbent ratings and a wide price spread all
// raise the barrier.
func CalculateEntryBarrier(offers []model.Offer) EntryBarrier {
	prices := sortedPrices(offers)
	if len(prices) == 0 {
		return EntryBarrier{Level: LevelLow, Factors: []string{}}
	}

	distinct := 1
	for i := 1; i < len(prices); i++ {
		if prices[i] != prices[i-1] {
			distinct++
		}
	}
	density := float64(distinct) / float64(len(prices))

	var ratings []float64
	for _, o := range offers {
		if o.HasPrice() && o.Rating() > 0 {
			ratings = append(ratings, o.Rating())
		}
	}
	avgRating := analysis.Mean(ratings)
	var topRating float64
	for _, r := range ratings {
		topRating = math.Max(topRating, r)
	}
	std := analysis.SampleStdDev(prices)

	score := WeightBarrierDensity*(1-density) +
		WeightBarrierAvgRating*clamp01(avgRating/MaxRating) +
		WeightBarrierTopRating*clamp01(topRating/MaxRating) +
		WeightBarrierStd*math.Min(std/BarrierStdScale, 1)

	level := LevelLow
	if score > BarrierHighOver {
		level = LevelHigh
	} else if score > BarrierMediumOver {
		level = LevelMedium
	}

	factors := []string{}
	if density < DenseClusterBelow {
		factors = append(factors, "Prices are tightly clustered")
	}
	if avgRating > StrongAvgRatingOver {
		factors = append(factors, "Competitors have a high average rating")
	}
	if topRating > StrongTopRatingOver {
		factors = append(factors, "Some sellers have a near-perfect rating")
	}
	if std < LowSpreadBelow {
		factors = append(factors, "Low price volatility")
	}

	return EntryBarrier{
		Score:        score,
		Level:        level,
		Factors:      factors,
		PriceDensity: density,
		AvgRating:    avgRating,
		TopRating:    topRating,
		PriceStd:     std,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
