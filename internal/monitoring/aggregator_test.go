package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guarzo/pricepos/internal/cache"
	"github.com/guarzo/pricepos/internal/model"
	"github.com/guarzo/pricepos/internal/storage"
	"github.com/guarzo/pricepos/internal/testutil"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.DriverSQLite, testutil.SQLitePath(t, "rollup"), 0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProduct(t *testing.T, s *storage.Store, externalID string, at time.Time, prices ...float64) model.Product {
	t.Helper()
	ctx := context.Background()
	p, err := s.UpsertProduct(ctx, model.Product{ExternalID: externalID, Name: "Product " + externalID})
	if err != nil {
		t.Fatalf("UpsertProduct() error = %v", err)
	}
	if err := s.ReplaceOffers(ctx, p.ID, testutil.Offers(prices...), at); err != nil {
		t.Fatalf("ReplaceOffers() error = %v", err)
	}
	return p
}

func TestAggregator_RunFromStore(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p1 := seedProduct(t, s, "111111", rollupDay, 100, 200, 300)
	p2 := seedProduct(t, s, "222222", rollupDay, 50)

	agg := NewAggregator(s, nil)
	summary, err := agg.Run(ctx, rollupDay)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Products != 2 || summary.Aggregated != 2 || len(summary.Errors) != 0 {
		t.Errorf("summary = %+v", summary)
	}

	rec, err := s.GetDaily(ctx, p1.ID, rollupDay)
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if rec.OffersCount != 3 || *rec.AvgPrice != 200 || rec.EstimatedTotalSellers != 12 {
		t.Errorf("rollup = %+v", rec)
	}
	if _, err := s.GetDaily(ctx, p2.ID, rollupDay); err != nil {
		t.Errorf("GetDaily(p2) error = %v", err)
	}

	// A second run for the same day replaces rather than duplicates.
	if _, err := agg.Run(ctx, rollupDay); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	list, err := s.ListDaily(ctx, p1.ID, rollupDay, rollupDay)
	if err != nil || len(list) != 1 {
		t.Errorf("ListDaily() = %d records, %v; want 1", len(list), err)
	}
}

func TestAggregator_PrefersCachedSnapshot(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "333333", rollupDay, 100, 200, 300)

	snapshots := cache.NewSnapshots(cache.NewMemoryCache(10, time.Hour), time.Hour)
	snapshots.PutOffers(p.ExternalID, testutil.Offers(400, 600))
	snapshots.PutBuckets(p.ExternalID, model.PriceBuckets{MinPrice: 400, MaxPrice: 600, TopSellersCount: 2, TotalSellersCount: 25})

	rec, err := NewAggregator(s, snapshots).AggregateProduct(ctx, p, rollupDay)
	if err != nil {
		t.Fatalf("AggregateProduct() error = %v", err)
	}
	if rec.OffersCount != 2 || *rec.AvgPrice != 500 || rec.EstimatedTotalSellers != 25 {
		t.Errorf("rollup = %+v, want the cached snapshot", rec)
	}
}

func TestAggregator_DeltasAgainstPreviousDay(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "444444", rollupDay, 100, 200, 300)

	prev := model.AnalyticsDailyRecord{ProductID: p.ID, Date: rollupDay.AddDate(0, 0, -2), AvgPrice: testutil.Ptr(250.0), SellersCount: 2}
	if err := s.UpsertDaily(ctx, prev); err != nil {
		t.Fatalf("UpsertDaily() error = %v", err)
	}

	rec, err := NewAggregator(s, nil).AggregateProduct(ctx, p, rollupDay)
	if err != nil {
		t.Fatalf("AggregateProduct() error = %v", err)
	}
	if rec.DeltaPrice == nil || *rec.DeltaPrice != -50 || *rec.DeltaPercent != -20 {
		t.Errorf("delta = %v/%v, want -50/-20", deref(rec.DeltaPrice), deref(rec.DeltaPercent))
	}
	if rec.SellersDelta != 1 {
		t.Errorf("SellersDelta = %d, want 1", rec.SellersDelta)
	}
}

func TestAggregator_Backfill(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	dayOne := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := seedProduct(t, s, "555555", dayOne, 100, 300)
	if err := s.ReplaceOffers(ctx, p.ID, testutil.Offers(200, 400), dayOne.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("ReplaceOffers() error = %v", err)
	}

	n, err := NewAggregator(s, nil).Backfill(ctx, p.ID)
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Backfill() = %d, want 2 days", n)
	}

	first, err := s.GetDaily(ctx, p.ID, dayOne)
	if err != nil {
		t.Fatalf("GetDaily(day one) error = %v", err)
	}
	if *first.AvgPrice != 200 || first.DeltaPrice != nil {
		t.Errorf("day one = avg %v delta %v", *first.AvgPrice, deref(first.DeltaPrice))
	}

	second, err := s.GetDaily(ctx, p.ID, dayOne.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetDaily(day two) error = %v", err)
	}
	if *second.AvgPrice != 300 || second.DeltaPrice == nil || *second.DeltaPrice != 100 || *second.DeltaPercent != 50 {
		t.Errorf("day two = avg %v delta %v/%v", *second.AvgPrice, deref(second.DeltaPrice), deref(second.DeltaPercent))
	}
}

type brokenStore struct {
	Store
}

func (brokenStore) ListProducts(context.Context) ([]model.Product, error) {
	return []model.Product{{ID: "a", ExternalID: "111111"}}, nil
}

func (brokenStore) ListOffers(context.Context, string) ([]model.Offer, error) {
	return nil, errors.New("disk I/O error")
}

func TestAggregator_RunRecordsProductErrors(t *testing.T) {
	summary, err := NewAggregator(brokenStore{}, nil).Run(context.Background(), rollupDay)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Aggregated != 0 || summary.Errors["111111"] == "" {
		t.Errorf("summary = %+v, want the product error recorded", summary)
	}
}

func TestAggregator_RunCancelled(t *testing.T) {
	s := openStore(t)
	seedProduct(t, s, "666666", rollupDay, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAggregator(s, nil).Run(ctx, rollupDay); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}
