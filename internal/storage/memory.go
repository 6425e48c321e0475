// Package storage provides market data cache backends.
package storage

import (
	"context"
	"sync"
	"time"
)

// entry wraps a cached payload with expiry and insertion order tracking.
type entry struct {
	data      []byte
	expiry    time.Time
	insertIdx int64
}

// MemoryCache is an in-process cache bounded by entry count.
// Thread-safe with sync.RWMutex.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]entry
	maxEntries int
	nextIdx    int64
	now        func() time.Time
}

// NewMemoryCache creates a MemoryCache holding at most maxEntries payloads.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1024
	}
	return &MemoryCache{
		items:      make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a cached payload if found and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if c.now().After(e.expiry) {
		// Expired: remove lazily
		c.mu.Lock()
		if e2, ok2 := c.items[key]; ok2 && c.now().After(e2.expiry) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	return e.data, true, nil
}

// Put stores a payload. Evicts the oldest entry if at capacity.
func (c *MemoryCache) Put(_ context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{
		data:      data,
		expiry:    c.now().Add(ttl),
		insertIdx: c.nextIdx,
	}
	c.nextIdx++

	// If key already exists, update in place (no capacity change)
	if _, exists := c.items[key]; exists {
		c.items[key] = e
		return nil
	}

	if len(c.items) >= c.maxEntries {
		c.evictOldest()
	}

	c.items[key] = e
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}

// evictOldest removes the entry with the lowest insertIdx. Must be called with mu held.
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestIdx int64 = -1

	for key, e := range c.items {
		if oldestIdx == -1 || e.insertIdx < oldestIdx {
			oldestIdx = e.insertIdx
			oldestKey = key
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
