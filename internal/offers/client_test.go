package offers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	cfg.Backoff = time.Millisecond
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 10
	return cfg
}

func offerJSON(price float64, merchant string) map[string]interface{} {
	return map[string]interface{}{
		"price":                   price,
		"merchantId":              strings.ToLower(merchant),
		"merchantName":            merchant,
		"merchantRating":          4.5,
		"merchantReviewsQuantity": 120,
		"preorder":                0,
		"productName":             "Apple iPhone 15 128Gb",
		"categoryName":            "Smartphones",
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestFetchProduct(t *testing.T) {
	var gotReq offerViewRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/yml/offer-view/offers/113137790" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-KS-City") != "750000000" {
			t.Errorf("X-KS-City = %q", r.Header.Get("X-KS-City"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		late := offerJSON(1300, "Gamma")
		late["preorder"] = 3
		writeJSON(t, w, map[string]interface{}{
			"offers": []interface{}{offerJSON(1000, "Alpha"), offerJSON(1200, "Beta"), late},
			"total":  42,
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	snapshot, err := client.FetchProduct(context.Background(), "113137790", 10)
	if err != nil {
		t.Fatalf("FetchProduct() error = %v", err)
	}

	if gotReq.Limit != 10 || gotReq.Page != 0 || gotReq.SortOption != "PRICE" || gotReq.ID != "113137790" {
		t.Errorf("request = %+v", gotReq)
	}
	if snapshot.Name != "Apple iPhone 15 128Gb" || snapshot.Category != "Smartphones" {
		t.Errorf("name/category = %q/%q", snapshot.Name, snapshot.Category)
	}
	if len(snapshot.Offers) != 3 {
		t.Fatalf("got %d offers, want 3", len(snapshot.Offers))
	}
	if snapshot.Offers[1].SellerName != "Beta" || snapshot.Offers[1].Rank(0) != 2 {
		t.Errorf("offer[1] = %+v", snapshot.Offers[1])
	}
	if snapshot.Offers[0].Rating() != 4.5 || snapshot.Offers[0].Reviews() != 120 {
		t.Errorf("seller details lost: %+v", snapshot.Offers[0])
	}
	if snapshot.Offers[2].Available() {
		t.Error("preorder offer should not be in stock")
	}
	want := "{MinPrice:1000 MaxPrice:1300 TopSellersCount:3 TotalSellersCount:42}"
	if got := fmt.Sprintf("%+v", snapshot.Buckets); got != want {
		t.Errorf("Buckets = %s, want %s", got, want)
	}
}

func TestFetchProduct_TruncatesToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{
			"offers":      []interface{}{offerJSON(1, "A"), offerJSON(2, "B"), offerJSON(3, "C")},
			"offersCount": 3,
		})
	}))
	defer server.Close()

	snapshot, err := NewClient(testConfig(server.URL)).FetchProduct(context.Background(), "113137790", 2)
	if err != nil {
		t.Fatalf("FetchProduct() error = %v", err)
	}
	if len(snapshot.Offers) != 2 || snapshot.Buckets.TopSellersCount != 2 || snapshot.Buckets.TotalSellersCount != 3 {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestFetchAllPrices_Pages(t *testing.T) {
	prices := []float64{100, 110, 120, 130, 140}
	var pages int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		var req offerViewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		from := min(req.Page*req.Limit, len(prices))
		to := min(from+req.Limit, len(prices))
		var offers []interface{}
		for i := from; i < to; i++ {
			offers = append(offers, offerJSON(prices[i], fmt.Sprintf("S%d", i)))
		}
		writeJSON(t, w, map[string]interface{}{"offers": offers, "total": 0})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.PageSize = 2
	snapshot, err := NewClient(cfg).FetchAllPrices(context.Background(), "113137790")
	if err != nil {
		t.Fatalf("FetchAllPrices() error = %v", err)
	}
	if got := snapshot.Prices(); len(got) != 5 || got[4] != 140 {
		t.Errorf("Prices() = %v, want all 5", got)
	}
	if n := atomic.LoadInt32(&pages); n != 3 {
		t.Errorf("requested %d pages, want 3", n)
	}
	if snapshot.Offers[4].Rank(0) != 5 {
		t.Errorf("rank across pages = %d, want 5", snapshot.Offers[4].Rank(0))
	}
}

func TestFetchAllPrices_PageCap(t *testing.T) {
	var pages int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		writeJSON(t, w, map[string]interface{}{
			"offers": []interface{}{offerJSON(1, "A"), offerJSON(2, "B")},
			"total":  1000,
		})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.PageSize = 2
	cfg.MaxPages = 3
	snapshot, err := NewClient(cfg).FetchAllPrices(context.Background(), "113137790")
	if err != nil {
		t.Fatalf("FetchAllPrices() error = %v", err)
	}
	if n := atomic.LoadInt32(&pages); n != 3 || len(snapshot.Offers) != 6 || snapshot.Buckets.TotalSellersCount != 1000 {
		t.Errorf("pages = %d, offers = %d, buckets = %+v", atomic.LoadInt32(&pages), len(snapshot.Offers), snapshot.Buckets)
	}
}

func TestFetchProduct_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, map[string]interface{}{"offers": []interface{}{offerJSON(500, "A")}})
	}))
	defer server.Close()

	snapshot, err := NewClient(testConfig(server.URL)).FetchProduct(context.Background(), "113137790", 10)
	if err != nil {
		t.Fatalf("FetchProduct() error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 || len(snapshot.Offers) != 1 {
		t.Errorf("calls = %d, offers = %d", n, len(snapshot.Offers))
	}
}

func TestFetchProduct_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 2
	_, err := NewClient(cfg).FetchProduct(context.Background(), "113137790", 10)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want wrapped StatusError 500", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}

	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("error = %v, want RetriesExhaustedError after 3 attempts", err)
	}
	// The outer error hides the retryable status from later retry policies.
	var retryable interface{ Retryable() bool }
	if !errors.As(fmt.Errorf("refresh: %w", err), &retryable) || retryable.Retryable() {
		t.Error("exhausted error should report itself as not retryable")
	}
}

func TestFetchProduct_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewClient(testConfig(server.URL)).FetchAllPrices(context.Background(), "113137790")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want StatusError 404", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestFetchProduct_CompressedResponses(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{"offers": []interface{}{offerJSON(700, "A")}, "total": 5})

	encoders := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write(b)
			_ = zw.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write(b)
			_ = bw.Close()
			return buf.Bytes()
		},
	}

	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			body := encode(payload)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(body)
			}))
			defer server.Close()

			snapshot, err := NewClient(testConfig(server.URL)).FetchAllPrices(context.Background(), "113137790")
			if err != nil {
				t.Fatalf("FetchAllPrices() error = %v", err)
			}
			if len(snapshot.Offers) != 1 || snapshot.Offers[0].Price != 700 || snapshot.Buckets.TotalSellersCount != 5 {
				t.Errorf("snapshot = %+v", snapshot)
			}
		})
	}
}

func TestFetchProduct_PageMetadataFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeJSON(t, w, map[string]interface{}{
				"offers": []interface{}{map[string]interface{}{"price": 900, "merchantName": "A"}},
			})
		case r.URL.Path == "/shop/p/113137790/":
			fmt.Fprint(w, `<html><head>
<meta property="og:title" content="Samsung Galaxy S24">
<title>ignored</title></head><body>
<nav class="breadcrumbs"><a href="/">Home</a><a href="/c/phones">Phones</a><a href="/c/smart">Smartphones</a></nav>
</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	snapshot, err := NewClient(testConfig(server.URL)).FetchProduct(context.Background(), "113137790", 10)
	if err != nil {
		t.Fatalf("FetchProduct() error = %v", err)
	}
	if snapshot.Name != "Samsung Galaxy S24" || snapshot.Category != "Smartphones" {
		t.Errorf("name/category = %q/%q", snapshot.Name, snapshot.Category)
	}
}

func TestFetchProduct_DefaultName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, map[string]interface{}{"offers": []interface{}{}})
	}))
	defer server.Close()

	snapshot, err := NewClient(testConfig(server.URL)).FetchProduct(context.Background(), "113137790", 10)
	if err != nil {
		t.Fatalf("FetchProduct() error = %v", err)
	}
	if snapshot.Name != "Product 113137790" {
		t.Errorf("Name = %q, want default", snapshot.Name)
	}
	if len(snapshot.Offers) != 0 || snapshot.Buckets.TopSellersCount != 0 {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestFetchProduct_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(cfg).FetchProduct(ctx, "113137790", 10)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff ignored the context")
	}
}
