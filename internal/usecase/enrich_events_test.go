package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/adapter/repository/memory"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/domain/mocks"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *sleepRecorder) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.waits {
		if w == d {
			n++
		}
	}
	return n
}

func newTestEnricher(g domain.Geocoder, c domain.GeocodeCache, opts EnrichOptions) (*EnrichEventsUseCase, *sleepRecorder) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := NewEnrichEventsUseCase(g, c, opts, logger, nil)
	rec := &sleepRecorder{}
	uc.sleep = rec.sleep
	return uc, rec
}

func found(lat, lon float64) domain.GeocodeOutcome {
	return domain.Found(&domain.GeocodeResult{Latitude: lat, Longitude: lon, DisplayName: "somewhere"})
}

func TestEnrichEventsUseCase_Batching(t *testing.T) {
	geocoder := &mocks.MockGeocoder{Default: found(47.2, -1.5)}
	uc, rec := newTestEnricher(geocoder, memory.NewGeocodeCache(time.Hour, time.Hour), EnrichOptions{
		BatchSize:  10,
		BatchDelay: 15 * time.Second,
	})

	events := make([]*domain.Event, 25)
	for i := range events {
		events[i] = &domain.Event{UID: fmt.Sprintf("e%d", i), City: fmt.Sprintf("Ville %d", i), Country: "France"}
	}

	report := uc.Enrich(context.Background(), events)

	if report.Batches != 3 {
		t.Errorf("expected 3 batches, got %d", report.Batches)
	}
	if report.Delays != 2 {
		t.Errorf("expected 2 inter-batch delays, got %d", report.Delays)
	}
	if got := rec.count(15 * time.Second); got != 2 {
		t.Errorf("expected 2 waits of 15s, got %d", got)
	}
	if report.Found != 25 {
		t.Errorf("expected 25 found, got %d", report.Found)
	}
	for _, ev := range events {
		if !ev.HasCoordinates() {
			t.Fatalf("event %s has no coordinates", ev.UID)
		}
	}
}

func TestEnrichEventsUseCase_Cache(t *testing.T) {
	addr := domain.Address{City: "Rennes", PostalCode: "35000", Country: "France"}

	t.Run("Positive Hit Skips Provider", func(t *testing.T) {
		cache := memory.NewGeocodeCache(time.Hour, time.Hour)
		_ = cache.StoreFound(context.Background(), addr.CacheKey(), &domain.GeocodeResult{Latitude: 48.1, Longitude: -1.68})
		geocoder := &mocks.MockGeocoder{Default: found(0, 0)}
		uc, _ := newTestEnricher(geocoder, cache, EnrichOptions{})

		ev := &domain.Event{UID: "a", City: "Rennes", PostalCode: "35000", Country: "France"}
		report := uc.Enrich(context.Background(), []*domain.Event{ev})

		if geocoder.CallCount() != 0 {
			t.Errorf("expected no provider call, got %d", geocoder.CallCount())
		}
		if report.CacheHits != 1 {
			t.Errorf("expected 1 cache hit, got %d", report.CacheHits)
		}
		if ev.Latitude == nil || *ev.Latitude != 48.1 {
			t.Errorf("expected latitude 48.1 from cache, got %v", ev.Latitude)
		}
	})

	t.Run("Negative Hit Skips Provider", func(t *testing.T) {
		cache := memory.NewGeocodeCache(time.Hour, time.Hour)
		_ = cache.StoreNotFound(context.Background(), addr.CacheKey())
		geocoder := &mocks.MockGeocoder{Default: found(0, 0)}
		uc, _ := newTestEnricher(geocoder, cache, EnrichOptions{})

		ev := &domain.Event{UID: "a", City: "Rennes", PostalCode: "35000", Country: "France"}
		uc.Enrich(context.Background(), []*domain.Event{ev})

		if geocoder.CallCount() != 0 {
			t.Errorf("expected no provider call, got %d", geocoder.CallCount())
		}
		if ev.HasCoordinates() {
			t.Error("expected event to stay without coordinates")
		}
	})

	t.Run("Not Found Is Cached", func(t *testing.T) {
		cache := memory.NewGeocodeCache(time.Hour, time.Hour)
		geocoder := &mocks.MockGeocoder{Default: domain.NotFound()}
		uc, _ := newTestEnricher(geocoder, cache, EnrichOptions{})

		ev := &domain.Event{UID: "a", City: "Nulle Part", Country: "France"}
		report := uc.Enrich(context.Background(), []*domain.Event{ev})

		if report.NotFound != 1 {
			t.Errorf("expected 1 not found, got %d", report.NotFound)
		}
		entry, _ := cache.Lookup(context.Background(), ev.Location().CacheKey())
		if entry == nil || !entry.NotFound {
			t.Errorf("expected negative cache entry, got %+v", entry)
		}
	})
}

func TestEnrichEventsUseCase_Retry(t *testing.T) {
	ev := func() *domain.Event { return &domain.Event{UID: "a", City: "Brest", Country: "France"} }
	query := ev().Location().Query()
	transient := domain.Transient(errors.New("status 503"))

	t.Run("Recovers After Transient Failures", func(t *testing.T) {
		geocoder := &mocks.MockGeocoder{Outcomes: map[string][]domain.GeocodeOutcome{
			query: {transient, transient, found(48.39, -4.49)},
		}}
		uc, rec := newTestEnricher(geocoder, nil, EnrichOptions{MaxAttempts: 3})

		e := ev()
		report := uc.Enrich(context.Background(), []*domain.Event{e})

		if geocoder.CallCount() != 3 {
			t.Errorf("expected 3 provider calls, got %d", geocoder.CallCount())
		}
		if report.Found != 1 || !e.HasCoordinates() {
			t.Errorf("expected event to be geocoded, report %+v", report)
		}
		if rec.count(2*time.Second) != 1 || rec.count(4*time.Second) != 1 {
			t.Errorf("expected backoff waits of 2s then 4s, got %v", rec.waits)
		}
	})

	t.Run("Gives Up Without Caching", func(t *testing.T) {
		cache := memory.NewGeocodeCache(time.Hour, time.Hour)
		geocoder := &mocks.MockGeocoder{Default: transient}
		uc, _ := newTestEnricher(geocoder, cache, EnrichOptions{MaxAttempts: 3})

		report := uc.Enrich(context.Background(), []*domain.Event{ev()})

		if geocoder.CallCount() != 3 {
			t.Errorf("expected 3 provider calls, got %d", geocoder.CallCount())
		}
		if report.Failed != 1 {
			t.Errorf("expected 1 failure, got %d", report.Failed)
		}
		if entry, _ := cache.Lookup(context.Background(), ev().Location().CacheKey()); entry != nil {
			t.Errorf("expected transient failure not to be cached, got %+v", entry)
		}
	})
}

func TestEnrichEventsUseCase_PassThrough(t *testing.T) {
	lat, lon := 1.0, 2.0

	t.Run("No Geocoder", func(t *testing.T) {
		uc, rec := newTestEnricher(nil, nil, EnrichOptions{})
		events := []*domain.Event{{UID: "a", City: "Nantes"}}

		report := uc.Enrich(context.Background(), events)

		if report != (EnrichReport{}) {
			t.Errorf("expected empty report, got %+v", report)
		}
		if len(rec.waits) != 0 {
			t.Errorf("expected no waits, got %v", rec.waits)
		}
	})

	t.Run("Existing Coordinates And Country Only", func(t *testing.T) {
		geocoder := &mocks.MockGeocoder{Default: found(0, 0)}
		uc, _ := newTestEnricher(geocoder, nil, EnrichOptions{})
		events := []*domain.Event{
			{UID: "a", City: "Nantes", Latitude: &lat, Longitude: &lon},
			{UID: "b", Country: "France"},
		}

		report := uc.Enrich(context.Background(), events)

		if geocoder.CallCount() != 0 {
			t.Errorf("expected no provider call, got %d", geocoder.CallCount())
		}
		if report.Skipped != 1 {
			t.Errorf("expected 1 skipped, got %d", report.Skipped)
		}
		if *events[0].Latitude != 1.0 {
			t.Error("expected existing coordinates to be kept")
		}
	})
}
