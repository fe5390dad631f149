package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/pkg/httpx"
)

const (
	defaultGeocodeBatchSize  = 10
	defaultGeocodeBatchDelay = 15 * time.Second
	defaultGeocodeAttempts   = 3
	defaultGeocodeBackoff    = 2 * time.Second
	defaultGeocodeMaxBackoff = 10 * time.Second
)

// EnrichOptions tunes the geocoding stage.
type EnrichOptions struct {
	BatchSize   int
	BatchDelay  time.Duration
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// MaxRPM > 0 adds a token bucket in front of provider calls.
	MaxRPM int
}

// EnrichReport counts what one Enrich call did.
type EnrichReport struct {
	Batches   int
	Delays    int
	Skipped   int
	CacheHits int
	Found     int
	NotFound  int
	Failed    int
}

// EnrichEventsUseCase adds coordinates to events in rate-limited batches.
type EnrichEventsUseCase struct {
	geocoder domain.Geocoder
	cache    domain.GeocodeCache
	opts     EnrichOptions
	limiter  *rate.Limiter
	calls    singleflight.Group
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics

	// sleep waits between batches and between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEnrichEventsUseCase builds the enricher. A nil geocoder turns Enrich into a
// pass-through; a nil cache means every lookup misses.
func NewEnrichEventsUseCase(geocoder domain.Geocoder, cache domain.GeocodeCache, opts EnrichOptions, logger *slog.Logger, m *metrics.PipelineMetrics) *EnrichEventsUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultGeocodeBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = defaultGeocodeBatchDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultGeocodeAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultGeocodeBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultGeocodeMaxBackoff
	}

	uc := &EnrichEventsUseCase{
		geocoder: geocoder,
		cache:    cache,
		opts:     opts,
		logger:   logger.With("component", "geocoding_enricher"),
		metrics:  m,
		sleep:    sleepContext,
	}
	if opts.MaxRPM > 0 {
		uc.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MaxRPM)), 1)
	}
	return uc
}

// Enabled reports whether a provider is configured.
func (uc *EnrichEventsUseCase) Enabled() bool {
	return uc != nil && uc.geocoder != nil
}

// Enrich fills coordinates in place on events that lack them. Events keep their
// order and identity; only location fields set by the provider change.
func (uc *EnrichEventsUseCase) Enrich(ctx context.Context, events []*domain.Event) EnrichReport {
	var report EnrichReport
	if !uc.Enabled() {
		uc.logger.Debug("No geocoding provider configured, passing events through", "count", len(events))
		return report
	}

	var pending []*domain.Event
	for _, ev := range events {
		if ev.HasCoordinates() {
			continue
		}
		pending = append(pending, ev)
	}
	if len(pending) == 0 {
		return report
	}

	var mu sync.Mutex
	tally := func(f func(r *EnrichReport)) {
		mu.Lock()
		f(&report)
		mu.Unlock()
	}

	for start := 0; start < len(pending); start += uc.opts.BatchSize {
		if start > 0 {
			if err := uc.sleep(ctx, uc.opts.BatchDelay); err != nil {
				uc.logger.Warn("Enrichment interrupted", "remaining", len(pending)-start, "error", err)
				return report
			}
			report.Delays++
		}
		end := min(start+uc.opts.BatchSize, len(pending))
		batch := pending[start:end]
		report.Batches++

		var g errgroup.Group
		g.SetLimit(uc.opts.BatchSize)
		for _, ev := range batch {
			g.Go(func() error {
				uc.enrichOne(ctx, ev, tally)
				return nil
			})
		}
		_ = g.Wait()
	}

	uc.logger.Info("Geocoding finished",
		"events", len(pending),
		"batches", report.Batches,
		"cache_hits", report.CacheHits,
		"found", report.Found,
		"not_found", report.NotFound,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report
}

func (uc *EnrichEventsUseCase) enrichOne(ctx context.Context, ev *domain.Event, tally func(func(*EnrichReport))) {
	addr := ev.Location()
	if !addr.Locatable() {
		tally(func(r *EnrichReport) { r.Skipped++ })
		return
	}
	key := addr.CacheKey()

	if entry := uc.lookup(ctx, key); entry != nil {
		tally(func(r *EnrichReport) { r.CacheHits++ })
		if !entry.NotFound {
			ev.ApplyGeocode(entry.Result)
		}
		return
	}

	// Events sharing an address in the same batch share one provider call.
	v, _, _ := uc.calls.Do(key, func() (any, error) {
		out := uc.geocodeWithRetry(ctx, addr)
		uc.store(ctx, key, out)
		return out, nil
	})
	out := v.(domain.GeocodeOutcome)

	switch out.Status {
	case domain.GeocodeFound:
		ev.ApplyGeocode(out.Result)
		tally(func(r *EnrichReport) { r.Found++ })
	case domain.GeocodeNotFound:
		tally(func(r *EnrichReport) { r.NotFound++ })
	default:
		uc.logger.Warn("Giving up on geocoding event", "uid", ev.UID, "error", out.Err)
		tally(func(r *EnrichReport) { r.Failed++ })
	}
}

func (uc *EnrichEventsUseCase) lookup(ctx context.Context, key string) *domain.CacheEntry {
	if uc.cache == nil {
		return nil
	}
	entry, err := uc.cache.Lookup(ctx, key)
	switch {
	case err != nil:
		uc.metrics.CacheLookup("error")
		uc.logger.Warn("Geocode cache lookup failed, treating as miss", "error", err)
		return nil
	case entry == nil:
		uc.metrics.CacheLookup("miss")
		return nil
	case entry.NotFound:
		uc.metrics.CacheLookup("negative_hit")
	default:
		uc.metrics.CacheLookup("hit")
	}
	return entry
}

func (uc *EnrichEventsUseCase) store(ctx context.Context, key string, out domain.GeocodeOutcome) {
	if uc.cache == nil {
		return
	}
	var err error
	switch out.Status {
	case domain.GeocodeFound:
		err = uc.cache.StoreFound(ctx, key, out.Result)
	case domain.GeocodeNotFound:
		err = uc.cache.StoreNotFound(ctx, key)
	default:
		return
	}
	if err != nil {
		uc.logger.Warn("Failed to write geocode cache", "error", err)
	}
}

// geocodeWithRetry retries Transient outcomes with exponential backoff.
// Found and NotFound are final.
func (uc *EnrichEventsUseCase) geocodeWithRetry(ctx context.Context, addr domain.Address) domain.GeocodeOutcome {
	var out domain.GeocodeOutcome
	for attempt := 1; attempt <= uc.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := httpx.Backoff(attempt-1, uc.opts.Backoff, uc.opts.MaxBackoff)
			uc.logger.Warn("Retrying geocode", "attempt", attempt, "wait", wait, "error", out.Err)
			if err := uc.sleep(ctx, wait); err != nil {
				return domain.Transient(err)
			}
		}
		if uc.limiter != nil {
			if err := uc.limiter.Wait(ctx); err != nil {
				return domain.Transient(err)
			}
		}
		out = uc.geocoder.Geocode(ctx, addr)
		if out.Status != domain.GeocodeTransient {
			return out
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
