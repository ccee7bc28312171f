package testutil

import (
	"strings"
	"testing"
	"time"
)

func TestNewTestDataFactory(t *testing.T) {
	factory1 := NewTestDataFactory(12345)
	factory2 := NewTestDataFactory(12345)

	// Same seed, same values
	id1 := factory1.GenerateProductID()
	id2 := factory2.GenerateProductID()
	if id1 != id2 {
		t.Errorf("factories with same seed should generate same values, got %s and %s", id1, id2)
	}
}

func TestOffers(t *testing.T) {
	offers := Offers(10, 20, 30)
	if len(offers) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(offers))
	}
	for i, o := range offers {
		if o.RankInSample == nil || *o.RankInSample != i+1 {
			t.Errorf("offer %d rank = %v, want %d", i, o.RankInSample, i+1)
		}
		if o.SellerName == "" {
			t.Errorf("offer %d has no seller", i)
		}
	}
}

func TestHistoryIsChronological(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := History("p1", start, 1, 2, 3)
	for i := 1; i < len(records); i++ {
		if !records[i].RecordedAt.After(records[i-1].RecordedAt) {
			t.Errorf("record %d not after record %d", i, i-1)
		}
	}

	ranked := RankedHistory("p1", start, []float64{1, 2}, []int{4})
	if ranked[0].RankInSample == nil || *ranked[0].RankInSample != 4 {
		t.Errorf("first rank = %v, want 4", ranked[0].RankInSample)
	}
	if ranked[1].RankInSample != nil {
		t.Errorf("second rank = %v, want nil", *ranked[1].RankInSample)
	}
}

func TestGenerateOffers(t *testing.T) {
	factory := NewTestDataFactory(7)
	offers := factory.GenerateOffers(20)

	if len(offers) != 20 {
		t.Fatalf("expected 20 offers, got %d", len(offers))
	}
	for i, o := range offers {
		if o.Price < 1000 || o.Price > 501000 {
			t.Errorf("price out of range: %v", o.Price)
		}
		if r := o.Rating(); r < 3 || r > 5 {
			t.Errorf("rating out of range: %v", r)
		}
		if i > 0 && o.Price < offers[i-1].Price {
			t.Errorf("offers not sorted at %d", i)
		}
		if !strings.HasPrefix(o.SellerName, "Test ") {
			t.Errorf("seller name should start with 'Test ', got %s", o.SellerName)
		}
	}
}

func TestGenerateHistory(t *testing.T) {
	factory := NewTestDataFactory(7)
	records := factory.GenerateHistory("p1", 50, 1000)

	if len(records) != 50 {
		t.Fatalf("expected 50 records, got %d", len(records))
	}
	for _, r := range records {
		if r.Price < 1 {
			t.Errorf("price should be positive, got %v", r.Price)
		}
		if r.RankInSample == nil {
			t.Error("rank should be set")
		}
		if r.ProductID != "p1" {
			t.Errorf("product id = %s, want p1", r.ProductID)
		}
	}
}
