// Package ristretto implements the cache port with an in-process
// dgraph-io/ristretto cache.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a size-bounded in-process byte cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Evicted uint64
	Cost    uint64
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxCostBytes)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100, 1000), // ~10x the expected item count for ~1KB values
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value for ttl. Sets are buffered; a value may be dropped under
// contention or admission policy, which callers treat as a miss later.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered sets are applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.c.Clear()
}

// Stats returns the current hit/miss counters.
func (c *Cache) Stats() Stats {
	m := c.c.Metrics
	return Stats{
		Hits:    m.Hits(),
		Misses:  m.Misses(),
		Evicted: m.KeysEvicted(),
		Cost:    m.CostAdded() - m.CostEvicted(),
	}
}

// Close releases the cache goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
