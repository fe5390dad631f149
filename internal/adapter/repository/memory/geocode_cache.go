// Package memory holds in-process repository implementations used when no
// external store is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

type cacheEntry struct {
	entry     domain.CacheEntry
	expiresAt time.Time
}

// GeocodeCache is a time-based in-memory domain.GeocodeCache.
type GeocodeCache struct {
	mu          sync.RWMutex
	entries     map[string]cacheEntry
	ttl         time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

func NewGeocodeCache(ttl, negativeTTL time.Duration) *GeocodeCache {
	return &GeocodeCache{
		entries:     make(map[string]cacheEntry),
		ttl:         ttl,
		negativeTTL: negativeTTL,
		now:         time.Now,
	}
}

func (c *GeocodeCache) Lookup(ctx context.Context, key string) (*domain.CacheEntry, error) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another store may have refreshed it.
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, nil
	}
	out := e.entry
	return &out, nil
}

func (c *GeocodeCache) StoreFound(ctx context.Context, key string, result *domain.GeocodeResult) error {
	r := *result
	c.store(key, domain.CacheEntry{Result: &r}, c.ttl)
	return nil
}

func (c *GeocodeCache) StoreNotFound(ctx context.Context, key string) error {
	c.store(key, domain.CacheEntry{NotFound: true}, c.negativeTTL)
	return nil
}

func (c *GeocodeCache) store(key string, entry domain.CacheEntry, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{entry: entry, expiresAt: expiresAt}
	c.mu.Unlock()
}

// size returns the number of entries, expired ones included.
func (c *GeocodeCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
