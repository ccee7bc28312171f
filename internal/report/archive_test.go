package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeS3 struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
	status int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.method, f.path, f.body = r.Method, r.URL.Path, string(body)
	status := f.status
	f.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		return
	}
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newTestArchiver(t *testing.T, srv *httptest.Server) *Archiver {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	a, err := NewArchiver(context.Background(), S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "reports",
		Prefix:          "daily",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("NewArchiver() error = %v", err)
	}
	a.now = func() time.Time { return time.Date(2026, 6, 2, 9, 15, 30, 0, time.UTC) }
	return a
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 6, 2, 9, 15, 30, 0, time.FixedZone("ALMT", 5*3600))
	got := ObjectKey("reports", "113137790", at)
	want := "reports/product=113137790/date=2026-06-02/report-041530.csv"
	if got != want {
		t.Errorf("ObjectKey() = %s, want %s", got, want)
	}

	if got := ObjectKey("", "1", at); !strings.HasPrefix(got, "product=1/") {
		t.Errorf("ObjectKey() without prefix = %s", got)
	}
}

func TestArchive(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	a := newTestArchiver(t, srv)
	key, err := a.Archive(context.Background(), "113137790", []byte("section,metric,value\n"))
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if key != "daily/product=113137790/date=2026-06-02/report-091530.csv" {
		t.Errorf("key = %s", key)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.method != http.MethodPut {
		t.Errorf("method = %s, want PUT", fake.method)
	}
	if fake.path != "/reports/"+key {
		t.Errorf("path = %s, want /reports/%s", fake.path, key)
	}
	if !strings.Contains(fake.body, "section,metric,value") {
		t.Errorf("body = %q, want the report", fake.body)
	}
}

func TestArchive_Denied(t *testing.T) {
	srv := httptest.NewServer(&fakeS3{status: http.StatusForbidden})
	defer srv.Close()

	a := newTestArchiver(t, srv)
	if _, err := a.Archive(context.Background(), "1", []byte("x")); err == nil {
		t.Error("expected error when the upload is rejected")
	}
}

func TestNewArchiver_RequiresBucket(t *testing.T) {
	if _, err := NewArchiver(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Error("expected error without a bucket")
	}
}
