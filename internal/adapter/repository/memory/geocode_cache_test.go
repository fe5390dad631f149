package memory

import (
	"context"
	"testing"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

func TestGeocodeCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewGeocodeCache(time.Hour, time.Minute)
	c.now = func() time.Time { return now }

	if e, _ := c.Lookup(ctx, "geocode:a"); e != nil {
		t.Fatal("expected miss on empty cache")
	}

	res := &domain.GeocodeResult{Latitude: 1, Longitude: 2}
	_ = c.StoreFound(ctx, "geocode:a", res)
	_ = c.StoreNotFound(ctx, "geocode:b")
	res.Latitude = 99

	e, _ := c.Lookup(ctx, "geocode:a")
	if e == nil || e.NotFound || e.Result.Latitude != 1 {
		t.Fatalf("positive entry = %+v", e)
	}
	e, _ = c.Lookup(ctx, "geocode:b")
	if e == nil || !e.NotFound {
		t.Fatalf("negative entry = %+v", e)
	}

	now = now.Add(2 * time.Minute)
	if e, _ := c.Lookup(ctx, "geocode:b"); e != nil {
		t.Error("negative entry should expire after its shorter TTL")
	}
	if e, _ := c.Lookup(ctx, "geocode:a"); e == nil {
		t.Error("positive entry should still be live")
	}

	now = now.Add(time.Hour)
	if e, _ := c.Lookup(ctx, "geocode:a"); e != nil {
		t.Error("positive entry should have expired")
	}
	if c.size() != 0 {
		t.Errorf("expired entries should be evicted on lookup, len=%d", c.size())
	}
}
