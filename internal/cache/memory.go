package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryCache is an in-process LRU tier with per-entry TTL. Values are kept
// as encoded JSON so callers get private copies on every read.
type MemoryCache struct {
	maxSize    int
	defaultTTL time.Duration
	items      map[string]*list.Element
	lru        *list.List
	mu         sync.Mutex
	now        func() time.Time
}

type memoryItem struct {
	key       string
	data      json.RawMessage
	expiresAt time.Time
}

// MemoryCacheStats contains memory cache statistics
type MemoryCacheStats struct {
	TotalItems     int     `json:"total_items"`
	TotalBytes     int64   `json:"total_bytes"`
	MaxSize        int     `json:"max_size"`
	ExpiredItems   int     `json:"expired_items"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
// A zero ttl on Put falls back to defaultTTL.
func NewMemoryCache(maxSize int, defaultTTL time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &MemoryCache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		now:        time.Now,
	}
}

func (m *MemoryCache) Get(key string, target interface{}) (bool, error) {
	data, ok := m.lookup(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("unmarshal memory entry: %w", err)
	}
	return true, nil
}

func (m *MemoryCache) lookup(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, exists := m.items[key]
	if !exists {
		return nil, false
	}
	item := element.Value.(*memoryItem)
	if m.now().After(item.expiresAt) {
		m.removeElement(element)
		return nil, false
	}
	m.lru.MoveToFront(element)
	return item.data, true
}

func (m *MemoryCache) Put(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	m.set(key, data, ttl)
	return nil
}

func (m *MemoryCache) set(key string, data json.RawMessage, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	item := &memoryItem{key: key, data: data, expiresAt: m.now().Add(ttl)}

	if element, exists := m.items[key]; exists {
		element.Value = item
		m.lru.MoveToFront(element)
		return
	}
	m.items[key] = m.lru.PushFront(item)
	for len(m.items) > m.maxSize {
		m.removeElement(m.lru.Back())
	}
}

// Delete removes an item from the memory cache
func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, exists := m.items[key]; exists {
		m.removeElement(element)
	}
}

// Clean drops expired entries.
func (m *MemoryCache) Clean() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var toRemove []*list.Element
	for element := m.lru.Back(); element != nil; element = element.Prev() {
		if now.After(element.Value.(*memoryItem).expiresAt) {
			toRemove = append(toRemove, element)
		}
	}
	for _, element := range toRemove {
		m.removeElement(element)
	}
}

// Size returns the current number of items in cache
func (m *MemoryCache) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryCache) Stats() MemoryCacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totalBytes int64
	var expired int
	now := m.now()
	for _, element := range m.items {
		item := element.Value.(*memoryItem)
		totalBytes += int64(len(item.data))
		if now.After(item.expiresAt) {
			expired++
		}
	}

	return MemoryCacheStats{
		TotalItems:     len(m.items),
		TotalBytes:     totalBytes,
		MaxSize:        m.maxSize,
		ExpiredItems:   expired,
		UtilizationPct: float64(len(m.items)) / float64(m.maxSize) * 100,
	}
}

func (m *MemoryCache) removeElement(element *list.Element) {
	item := element.Value.(*memoryItem)
	delete(m.items, item.key)
	m.lru.Remove(element)
}
