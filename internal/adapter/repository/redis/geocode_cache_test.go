package redis

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

func setupTestCache(t *testing.T) (*GeocodeCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewGeocodeCache(client, logger, 720*time.Hour, 24*time.Hour), mr
}

func TestGeocodeCache_FoundRoundTrip(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()
	key := domain.Address{City: "Nantes", Country: "France"}.CacheKey()

	entry, err := cache.Lookup(ctx, key)
	if err != nil || entry != nil {
		t.Fatalf("expected miss, got %+v, %v", entry, err)
	}

	conf := 0.8
	want := &domain.GeocodeResult{Latitude: 47.2184, Longitude: -1.5536, DisplayName: "Nantes, France", PlaceID: "whosonfirst:locality:1", Confidence: &conf}
	if err := cache.StoreFound(ctx, key, want); err != nil {
		t.Fatalf("StoreFound failed: %v", err)
	}

	entry, err = cache.Lookup(ctx, key)
	if err != nil || entry == nil || entry.NotFound {
		t.Fatalf("expected positive hit, got %+v, %v", entry, err)
	}
	if entry.Result.Latitude != want.Latitude || entry.Result.DisplayName != want.DisplayName || *entry.Result.Confidence != conf {
		t.Errorf("got %+v, want %+v", entry.Result, want)
	}
	if ttl := mr.TTL(key); ttl != 720*time.Hour {
		t.Errorf("positive TTL = %v, want 720h", ttl)
	}

	mr.FastForward(721 * time.Hour)
	if entry, _ := cache.Lookup(ctx, key); entry != nil {
		t.Error("entry should have expired")
	}
}

func TestGeocodeCache_NotFound(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()
	key := domain.Address{Street: "Nowhere", City: "Atlantis"}.CacheKey()

	if err := cache.StoreNotFound(ctx, key); err != nil {
		t.Fatalf("StoreNotFound failed: %v", err)
	}
	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("key missing: %v", err)
	}
	if raw != `{"_not_found":true}` {
		t.Errorf("stored value = %s", raw)
	}
	if ttl := mr.TTL(key); ttl != 24*time.Hour {
		t.Errorf("negative TTL = %v, want 24h", ttl)
	}

	entry, err := cache.Lookup(ctx, key)
	if err != nil || entry == nil || !entry.NotFound || entry.Result != nil {
		t.Fatalf("expected negative hit, got %+v, %v", entry, err)
	}
}

func TestGeocodeCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestCache(t)
	mr.Set("geocode:bad", "not json")

	entry, err := cache.Lookup(context.Background(), "geocode:bad")
	if err == nil || entry != nil {
		t.Fatalf("expected decode error, got %+v, %v", entry, err)
	}
}

func TestGeocodeCache_Unavailable(t *testing.T) {
	cache, mr := setupTestCache(t)
	mr.Close()

	if _, err := cache.Lookup(context.Background(), "geocode:x"); err == nil {
		t.Error("expected error when the store is down")
	}
	if err := cache.StoreNotFound(context.Background(), "geocode:x"); err == nil {
		t.Error("expected error when the store is down")
	}
}
