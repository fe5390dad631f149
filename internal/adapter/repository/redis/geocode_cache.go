package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

// notFoundValue is the stored form of a negative answer.
const notFoundValue = `{"_not_found":true}`

type cachedRecord struct {
	NotFound bool `json:"_not_found,omitempty"`
	domain.GeocodeResult
}

// GeocodeCache implements domain.GeocodeCache on a Redis-compatible key-value store.
// Positive answers are stored as JSON with ttl; negative ones with negativeTTL.
type GeocodeCache struct {
	client      redis.Cmdable
	logger      *slog.Logger
	ttl         time.Duration
	negativeTTL time.Duration
}

// NewGeocodeCache creates a cache over client. A zero TTL stores entries without expiry.
func NewGeocodeCache(client redis.Cmdable, logger *slog.Logger, ttl, negativeTTL time.Duration) *GeocodeCache {
	return &GeocodeCache{
		client:      client,
		logger:      logger.With("component", "redis_geocode_cache"),
		ttl:         ttl,
		negativeTTL: negativeTTL,
	}
}

// Lookup returns nil, nil on a miss.
func (c *GeocodeCache) Lookup(ctx context.Context, key string) (*domain.CacheEntry, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode cache: %w", err)
	}

	var rec cachedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn("Discarding unreadable cache entry", "key", key, "error", err)
		return nil, fmt.Errorf("failed to decode geocode cache entry: %w", err)
	}
	if rec.NotFound {
		return &domain.CacheEntry{NotFound: true}, nil
	}
	result := rec.GeocodeResult
	return &domain.CacheEntry{Result: &result}, nil
}

func (c *GeocodeCache) StoreFound(ctx context.Context, key string, result *domain.GeocodeResult) error {
	if result == nil {
		return errors.New("cannot cache a nil geocode result")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode geocode result: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}

func (c *GeocodeCache) StoreNotFound(ctx context.Context, key string) error {
	if err := c.client.Set(ctx, key, notFoundValue, c.negativeTTL).Err(); err != nil {
		return fmt.Errorf("failed to write negative geocode cache entry: %w", err)
	}
	return nil
}

// Ping checks connectivity at startup.
func (c *GeocodeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
