package report

import (
	"bytes"
	"sort"
	"strconv"
	"time"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/model"
)

// ComparisonSide is one of the two products of a comparison report.
type ComparisonSide struct {
	Product model.Product
	Offers  []model.Offer
}

var comparisonOfferHeader = []string{"rank", "seller", "price", "seller_rating"}

// BuildComparisonReport lays two products side by side: a metric block with
// one column per product, then each product's offers ordered by price.
func BuildComparisonReport(a, b ComparisonSide, generatedAt time.Time) [][]string {
	sa, sb := analysis.ComputeStatistics(a.Offers), analysis.ComputeStatistics(b.Offers)

	rows := [][]string{
		{"metric", label(a.Product), label(b.Product)},
		{"external_id", EscapeCSVCell(a.Product.ExternalID), EscapeCSVCell(b.Product.ExternalID)},
		{"generated_at", generatedAt.UTC().Format(time.RFC3339), generatedAt.UTC().Format(time.RFC3339)},
		{"min_price", formatPtr(sa.Min), formatPtr(sb.Min)},
		{"max_price", formatPtr(sa.Max), formatPtr(sb.Max)},
		{"avg_price", formatPtr(sa.Mean), formatPtr(sb.Mean)},
		{"median_price", formatPtr(sa.Median), formatPtr(sb.Median)},
		{"offers_count", strconv.Itoa(sa.Count), strconv.Itoa(sb.Count)},
	}

	for _, side := range []ComparisonSide{a, b} {
		rows = append(rows, nil, []string{"product", label(side.Product)}, comparisonOfferHeader)
		rows = append(rows, offersByPrice(side.Offers)...)
	}
	return rows
}

// RenderComparison builds the comparison report and returns it as CSV.
func RenderComparison(a, b ComparisonSide, generatedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, BuildComparisonReport(a, b, generatedAt)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func offersByPrice(offers []model.Offer) [][]string {
	sorted := make([]model.Offer, 0, len(offers))
	for _, o := range offers {
		if o.HasPrice() {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	rows := make([][]string, len(sorted))
	for i, o := range sorted {
		rows[i] = []string{
			strconv.Itoa(o.Rank(i + 1)),
			EscapeCSVCell(o.SellerName),
			formatFloat(o.Price),
			formatPtr(o.SellerRating),
		}
	}
	return rows
}

func label(p model.Product) string {
	if p.Name != "" {
		return EscapeCSVCell(p.Name)
	}
	return EscapeCSVCell(p.ExternalID)
}
