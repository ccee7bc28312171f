package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/testutil"
)

func TestBuildComparisonReport(t *testing.T) {
	a := ComparisonSide{
		Product: model.Product{ExternalID: "111111", Name: "Phone A"},
		Offers:  testutil.Offers(300, 100, 200),
	}
	b := ComparisonSide{
		Product: model.Product{ExternalID: "222222"},
		Offers:  []model.Offer{testutil.RatedOffer("@evil", 50, 4.5, 10, 1), {Price: 0, SellerName: "no price"}},
	}
	at := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)

	rows := BuildComparisonReport(a, b, at)

	if got := rows[0]; got[1] != "Phone A" || got[2] != "222222" {
		t.Errorf("header = %v, want product labels", got)
	}
	want := map[string][2]string{
		"min_price":    {"100.00", "50.00"},
		"max_price":    {"300.00", "50.00"},
		"avg_price":    {"200.00", "50.00"},
		"offers_count": {"3", "1"},
	}
	for _, r := range rows {
		if len(r) == 3 {
			if w, ok := want[r[0]]; ok {
				if r[1] != w[0] || r[2] != w[1] {
					t.Errorf("%s = %v, want %v", r[0], r[1:], w)
				}
				delete(want, r[0])
			}
		}
	}
	if len(want) != 0 {
		t.Errorf("missing metrics: %v", want)
	}

	// Offers of the first product are listed cheapest first.
	var prices []string
	for i, r := range rows {
		if len(r) == 2 && r[0] == "product" && r[1] == "Phone A" {
			for _, o := range rows[i+2 : i+5] {
				prices = append(prices, o[2])
			}
		}
	}
	if len(prices) != 3 || prices[0] != "100.00" || prices[2] != "300.00" {
		t.Errorf("first product offers = %v", prices)
	}

	last := rows[len(rows)-1]
	if last[1] != "'@evil" || last[3] != "4.50" {
		t.Errorf("last offer row = %v, want escaped seller and rating", last)
	}
}

func TestRenderComparison(t *testing.T) {
	side := ComparisonSide{Product: model.Product{ExternalID: "111111", Name: "Phone"}, Offers: testutil.Offers(10)}
	data, err := RenderComparison(side, side, time.Now())
	if err != nil {
		t.Fatalf("RenderComparison() error = %v", err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse rendered CSV: %v", err)
	}
	if len(records) == 0 || records[0][0] != "metric" {
		t.Errorf("records = %v", records)
	}
}
