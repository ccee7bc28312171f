package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store is the key/value contract shared by every cache tier.
type Store interface {
	Get(key string, target interface{}) (bool, error)
	Put(key string, value interface{}, ttl time.Duration) error
}

// record is one persisted value. A zero ExpiresAt never expires.
type record struct {
	Value     json.RawMessage `json:"value"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

func (r record) live(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// Cache is the durable tier: a JSON file holding snapshot entries across
// restarts. Writes go to a temp file that replaces the old one, and expired
// records are dropped whenever the file is loaded or written.
type Cache struct {
	path    string
	mu      sync.RWMutex
	records map[string]record
	now     func() time.Time
}

// New loads the cache file at path. A missing file starts empty, and so does
// an unreadable one: it is overwritten by the next write.
func New(path string) (*Cache, error) {
	c := &Cache{path: path, records: make(map[string]record), now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("read cache file %s: %w", path, err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var loaded map[string]record
	if json.Unmarshal(data, &loaded) != nil {
		return c, nil
	}
	now := c.now()
	for key, r := range loaded {
		if r.live(now) {
			c.records[key] = r
		}
	}
	return c, nil
}

func (c *Cache) Get(key string, target interface{}) (bool, error) {
	c.mu.RLock()
	r, ok := c.records[key]
	c.mu.RUnlock()
	if !ok || !r.live(c.now()) {
		return false, nil
	}
	if err := json.Unmarshal(r.Value, target); err != nil {
		return false, fmt.Errorf("decode cache value %s: %w", key, err)
	}
	return true, nil
}

// Remaining returns the time left before key expires. Entries stored without
// a TTL report zero and true.
func (c *Cache) Remaining(key string) (time.Duration, bool) {
	c.mu.RLock()
	r, ok := c.records[key]
	c.mu.RUnlock()

	now := c.now()
	if !ok || !r.live(now) {
		return 0, false
	}
	if r.ExpiresAt.IsZero() {
		return 0, true
	}
	return r.ExpiresAt.Sub(now), true
}

// Put stores value under key for ttl and flushes the file. ttl <= 0 keeps
// the entry until it is removed.
func (c *Cache) Put(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}

	now := c.now()
	r := record{Value: data, StoredAt: now}
	if ttl > 0 {
		r.ExpiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[key] = r
	return c.flush()
}

func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, key)
	return c.flush()
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]record)
	return c.flush()
}

// flush writes the live records. Callers hold the write lock.
func (c *Cache) flush() error {
	now := c.now()
	for key, r := range c.records {
		if !r.live(now) {
			delete(c.records, key)
		}
	}

	data, err := json.Marshal(c.records)
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// BuildKey joins key parts with ':'.
func BuildKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func OffersKey(productID string) string {
	return BuildKey("product", productID, "offers")
}

func BucketsKey(productID string) string {
	return BuildKey("product", productID, "buckets")
}

func AllPricesKey(productID string) string {
	return BuildKey("product", productID, "all_prices")
}
