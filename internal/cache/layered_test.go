package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLayered_PromotesFileHits(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "cache.json")

	// Seed the file tier through a separate instance.
	seed, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	seed.now = clock.Now
	if err := seed.Put("k", "from-file", 10*time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	back, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	back.now = clock.Now
	front := NewMemoryCache(10, time.Hour)
	front.now = clock.Now
	l := NewLayered(front, back)

	clock.Advance(4 * time.Minute)

	var v string
	found, err := l.Get("k", &v)
	if err != nil || !found || v != "from-file" {
		t.Fatalf("Get() = %q, %v, %v", v, found, err)
	}
	if front.Size() != 1 {
		t.Fatalf("memory tier size = %d, want 1 after promotion", front.Size())
	}

	// The promoted entry keeps the file entry's remaining lifetime.
	clock.Advance(7 * time.Minute)
	if found, _ := front.Get("k", &v); found {
		t.Error("promoted entry outlived the file entry")
	}
}

func TestLayered_PutWritesBothTiers(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "cache.json"), 10, time.Hour)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Put("k", 42, time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var v int
	if found, _ := l.front.Get("k", &v); !found {
		t.Error("memory tier missing k")
	}
	if found, _ := l.back.Get("k", &v); !found {
		t.Error("file tier missing k")
	}

	if err := l.Remove("k"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if found, _ := l.Get("k", &v); found {
		t.Error("expected k to be removed from both tiers")
	}
}

func TestLayered_Miss(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "cache.json"), 10, time.Hour)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	var v int
	found, err := l.Get("missing", &v)
	if err != nil || found {
		t.Errorf("Get(missing) = %v, %v, want miss", found, err)
	}
}
