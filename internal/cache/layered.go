package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Layered serves reads from memory first and falls back to the file cache,
// promoting file hits into memory for the rest of their lifetime.
type Layered struct {
	front *MemoryCache
	back  *Cache
}

func NewLayered(front *MemoryCache, back *Cache) *Layered {
	return &Layered{front: front, back: back}
}

// Open builds a layered cache persisted at path with a memory tier of
// memoryEntries items.
func Open(path string, memoryEntries int, defaultTTL time.Duration) (*Layered, error) {
	back, err := New(path)
	if err != nil {
		return nil, fmt.Errorf("open file cache: %w", err)
	}
	return NewLayered(NewMemoryCache(memoryEntries, defaultTTL), back), nil
}

func (l *Layered) Get(key string, target interface{}) (bool, error) {
	if found, err := l.front.Get(key, target); err == nil && found {
		return true, nil
	}

	var raw json.RawMessage
	found, err := l.back.Get(key, &raw)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return false, fmt.Errorf("unmarshal cache entry: %w", err)
	}

	if remaining, ok := l.back.Remaining(key); ok {
		l.front.set(key, raw, remaining)
	}
	return true, nil
}

func (l *Layered) Put(key string, value interface{}, ttl time.Duration) error {
	if err := l.front.Put(key, value, ttl); err != nil {
		return err
	}
	return l.back.Put(key, value, ttl)
}

func (l *Layered) Remove(key string) error {
	l.front.Delete(key)
	return l.back.Remove(key)
}

// Stats reports the memory tier.
func (l *Layered) Stats() MemoryCacheStats {
	return l.front.Stats()
}
