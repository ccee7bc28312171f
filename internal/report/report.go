package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/marketplace"
	"github.com/guarzo/pricepos/internal/model"
)

// ProductReport is everything known about one product at a point in time.
// Position and Analytics are optional.
type ProductReport struct {
	Product     model.Product
	GeneratedAt time.Time
	Statistics  analysis.Statistics
	Position    *model.PositionEstimate
	Analytics   *marketplace.MarketAnalytics
	Offers      []model.Offer
}

var offerHeader = []string{"rank", "seller", "price", "seller_rating", "seller_reviews", "in_stock", "delivery_type"}

// BuildProductReport lays the report out as CSV records: a block of
// section,metric,value rows followed by one row per offer. Text that came
// from the marketplace is escaped against formula injection.
func BuildProductReport(r ProductReport) [][]string {
	rows := [][]string{{"section", "metric", "value"}}
	add := func(section, metric, value string) {
		rows = append(rows, []string{section, metric, value})
	}

	add("product", "external_id", EscapeCSVCell(r.Product.ExternalID))
	add("product", "name", EscapeCSVCell(r.Product.Name))
	add("product", "category", EscapeCSVCell(r.Product.Category))
	add("product", "generated_at", r.GeneratedAt.UTC().Format(time.RFC3339))

	s := r.Statistics
	add("statistics", "count", strconv.Itoa(s.Count))
	add("statistics", "min", formatPtr(s.Min))
	add("statistics", "max", formatPtr(s.Max))
	add("statistics", "mean", formatPtr(s.Mean))
	add("statistics", "median", formatPtr(s.Median))
	add("statistics", "std", formatPtr(s.StdDev))

	if p := r.Position; p != nil {
		add("position", "input_price", formatFloat(p.InputPrice))
		add("position", "estimated_position", strconv.Itoa(p.EstimatedPosition))
		add("position", "total_sellers", strconv.Itoa(p.TotalSellers))
		add("position", "percentile", formatFloat(p.Percentile))
		add("position", "data_source", string(p.DataSource))
	}

	if a := r.Analytics; a != nil {
		if d := a.Distribution; d != nil {
			add("analytics", "p25", formatFloat(d.P25))
			add("analytics", "p75", formatFloat(d.P75))
			add("analytics", "iqr", formatFloat(d.IQR))
		}
		if o := a.OptimalPrice; o != nil {
			add("analytics", "optimal_price", formatFloat(o.Price))
			add("analytics", "optimal_position", strconv.Itoa(o.EstimatedPosition))
		}
		add("analytics", "trend", a.Trend.Direction)
		add("analytics", "competition_level", a.Demand.CompetitionLevel)
		add("analytics", "demand_score", formatFloat(a.Demand.Score))
		add("analytics", "entry_barrier", a.EntryBarrier.Level)
		add("analytics", "anomalies", strconv.Itoa(len(a.Anomalies)))
	}

	rows = append(rows, nil, offerHeader)
	for i, o := range r.Offers {
		rows = append(rows, []string{
			strconv.Itoa(o.Rank(i + 1)),
			EscapeCSVCell(o.SellerName),
			formatFloat(o.Price),
			formatPtr(o.SellerRating),
			optionalInt(o.SellerReviews),
			strconv.FormatBool(o.Available()),
			EscapeCSVCell(o.DeliveryType),
		})
	}
	return rows
}

// WriteCSV writes records to w. Empty records become blank lines.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		if len(row) == 0 {
			cw.Flush()
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			continue
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Render builds the report and returns it as CSV.
func Render(r ProductReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, BuildProductReport(r)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(analysis.Round2(v), 'f', 2, 64)
}

func formatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
