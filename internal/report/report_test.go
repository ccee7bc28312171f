package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/pricepos/internal/analysis"
	"github.com/guarzo/pricepos/internal/marketplace"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/testutil"
)

func sampleReport() ProductReport {
	offers := []model.Offer{
		testutil.RatedOffer("=HYPERLINK(\"x\")", 100, 4.5, 12, 1),
		testutil.RatedOffer("Shop Two", 250.556, 5, 300, 2),
		{Price: 300, SellerName: "Unrated"},
	}
	analytics := marketplace.ComputeMarketAnalytics(offers, nil, nil, marketplace.DefaultOptions())
	return ProductReport{
		Product:     model.Product{ExternalID: "113137790", Name: "Phone, 128GB", Category: "Phones"},
		GeneratedAt: time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC),
		Statistics:  analysis.ComputeStatistics(offers),
		Position:    &model.PositionEstimate{InputPrice: 200, EstimatedPosition: 2, TotalSellers: 3, Percentile: 33.33, DataSource: model.DataSourceSample},
		Analytics:   &analytics,
		Offers:      offers,
	}
}

func metric(rows [][]string, section, name string) (string, bool) {
	for _, r := range rows {
		if len(r) == 3 && r[0] == section && r[1] == name {
			return r[2], true
		}
	}
	return "", false
}

func TestBuildProductReport(t *testing.T) {
	rows := BuildProductReport(sampleReport())

	checks := []struct{ section, name, want string }{
		{"product", "name", "Phone, 128GB"},
		{"product", "generated_at", "2026-06-02T09:00:00Z"},
		{"statistics", "count", "3"},
		{"statistics", "min", "100.00"},
		{"statistics", "max", "300.00"},
		{"position", "estimated_position", "2"},
		{"position", "data_source", "sample"},
		{"analytics", "trend", "insufficient_data"},
	}
	for _, c := range checks {
		got, ok := metric(rows, c.section, c.name)
		if !ok || got != c.want {
			t.Errorf("%s.%s = %q (found %v), want %q", c.section, c.name, got, ok, c.want)
		}
	}

	var offerRows [][]string
	for i, r := range rows {
		if len(r) > 0 && r[0] == "rank" {
			offerRows = rows[i+1:]
		}
	}
	if len(offerRows) != 3 {
		t.Fatalf("offer rows = %d, want 3", len(offerRows))
	}
	if offerRows[0][1] != `'=HYPERLINK("x")` {
		t.Errorf("seller not escaped: %q", offerRows[0][1])
	}
	if offerRows[1][2] != "250.56" || offerRows[1][4] != "300" {
		t.Errorf("offer row = %q", offerRows[1])
	}
	if offerRows[2][0] != "3" || offerRows[2][3] != "" || offerRows[2][5] != "true" {
		t.Errorf("unrated offer row = %q", offerRows[2])
	}
}

func TestBuildProductReport_Minimal(t *testing.T) {
	rows := BuildProductReport(ProductReport{Product: model.Product{ExternalID: "1"}})
	if _, ok := metric(rows, "position", "estimated_position"); ok {
		t.Error("position rows without a position")
	}
	if _, ok := metric(rows, "analytics", "trend"); ok {
		t.Error("analytics rows without analytics")
	}
	if got, _ := metric(rows, "statistics", "min"); got != "" {
		t.Errorf("statistics.min = %q, want empty", got)
	}
}

func TestRender(t *testing.T) {
	data, err := Render(sampleReport())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "section,metric,value\n") {
		t.Errorf("unexpected header: %q", text[:40])
	}
	if !strings.Contains(text, "\n\nrank,seller,price") {
		t.Error("expected a blank line before the offers block")
	}
	if !strings.Contains(text, `product,name,"Phone, 128GB"`) {
		t.Error("expected the comma in the name to be quoted")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("rendered CSV does not parse: %v", err)
	}
	if len(records) < 10 {
		t.Errorf("records = %d", len(records))
	}
}
