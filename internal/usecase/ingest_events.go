package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/dedup"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// SourceBuilder creates the run's source once the existing uids are known, so browser
// sources can skip known cards before parsing them.
type SourceBuilder func(known *dedup.Keyer) (source.Source, error)

// RunOptions selects how a run flushes.
type RunOptions struct {
	Mode   string
	Source domain.SourceKind
	// Streaming enriches and stores after every page or chunk. Otherwise the whole
	// run is collected first and stored once at the end.
	Streaming bool
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	RunID      string
	Replayed   int
	Fragments  int
	Skipped    int
	Duplicates int
	Known      int
	New        int
	Inserted   int
	Ignored    int
	Spooled    int
	Enrich     EnrichReport
	Duration   time.Duration
}

// IngestEventsUseCase runs fetch, normalize, dedup, enrich and store in order.
type IngestEventsUseCase struct {
	repo       domain.EventRepository
	normalizer *normalize.Normalizer
	enricher   *EnrichEventsUseCase
	store      *StoreEventsUseCase
	logger     *slog.Logger
	metrics    *metrics.PipelineMetrics
	now        func() time.Time
}

func NewIngestEventsUseCase(repo domain.EventRepository, n *normalize.Normalizer, enricher *EnrichEventsUseCase, store *StoreEventsUseCase, logger *slog.Logger, m *metrics.PipelineMetrics) *IngestEventsUseCase {
	return &IngestEventsUseCase{
		repo:       repo,
		normalizer: n,
		enricher:   enricher,
		store:      store,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Run executes one ingestion run and returns its report. Only a source failure or a
// batch that could neither be stored nor spooled ends the run with an error; records
// collected before a source failure are still stored.
func (uc *IngestEventsUseCase) Run(ctx context.Context, opts RunOptions, build SourceBuilder) (*RunReport, error) {
	started := uc.now()
	report := &RunReport{RunID: uuid.NewString()}
	logger := uc.logger.With("run_id", report.RunID, "mode", opts.Mode)
	logger.Info("Starting ingestion run", "streaming", opts.Streaming)

	replayed, err := uc.store.ReplaySpool(ctx)
	if err != nil {
		logger.Warn("Continuing without spool replay", "error", err)
	}
	report.Replayed = replayed

	existing, err := uc.repo.ExistingUIDs(ctx)
	if err != nil {
		logger.Warn("Failed to load existing uids, relying on storage conflicts", "error", err)
		existing = nil
	}
	keyer := dedup.NewKeyer(existing)
	logger.Info("Loaded existing uids", "count", keyer.Len())

	src, err := build(keyer)
	if err != nil {
		return report, fmt.Errorf("build source: %w", err)
	}
	defer func() {
		if err := source.Close(src); err != nil {
			logger.Warn("Failed to close source", "error", err)
		}
	}()

	var pending []*domain.Event
	var srcErr error
	for {
		frags, err := src.Next(ctx)
		if errors.Is(err, source.ErrExhausted) {
			break
		}
		if err != nil {
			srcErr = err
			break
		}

		events := uc.normalizeAll(frags, report, logger)
		events = uc.selectNew(events, keyer, opts.Source, report)
		if len(events) == 0 {
			continue
		}
		if opts.Streaming {
			if err := uc.flush(ctx, opts.Source, events, report); err != nil {
				return report, err
			}
			continue
		}
		pending = append(pending, events...)
	}

	if err := uc.flush(ctx, opts.Source, pending, report); err != nil {
		return report, err
	}

	report.Duration = uc.now().Sub(started)
	if srcErr != nil {
		logger.Error("Source failed, run ended early", "error", srcErr, "inserted", report.Inserted)
		return report, fmt.Errorf("read source: %w", srcErr)
	}

	uc.metrics.RunFinished(opts.Mode, report.Duration.Seconds(), uc.now().Unix())
	logger.Info("Ingestion run finished",
		"fragments", report.Fragments,
		"skipped", report.Skipped,
		"known", report.Known,
		"duplicates", report.Duplicates,
		"new", report.New,
		"inserted", report.Inserted,
		"ignored", report.Ignored,
		"spooled", report.Spooled,
		"replayed", report.Replayed,
		"duration", report.Duration,
	)
	return report, nil
}

// ReplaySpool only replays spooled batches.
func (uc *IngestEventsUseCase) ReplaySpool(ctx context.Context) (int, error) {
	return uc.store.ReplaySpool(ctx)
}

func (uc *IngestEventsUseCase) normalizeAll(frags []normalize.Fragment, report *RunReport, logger *slog.Logger) []*domain.Event {
	events := make([]*domain.Event, 0, len(frags))
	for _, f := range frags {
		report.Fragments++
		ev, err := uc.normalizer.Normalize(f)
		if err != nil {
			report.Skipped++
			uc.metrics.Fragment(string(f.Kind), "skipped")
			logger.Debug("Skipped fragment", "source", f.Kind, "error", err)
			continue
		}
		uc.metrics.Fragment(string(f.Kind), "ok")
		events = append(events, ev)
	}
	return events
}

// selectNew drops in-batch duplicates and uids already stored or already seen this
// run, then marks the survivors as seen.
func (uc *IngestEventsUseCase) selectNew(events []*domain.Event, keyer *dedup.Keyer, kind domain.SourceKind, report *RunReport) []*domain.Event {
	unique := dedup.Dedupe(events)
	report.Duplicates += len(events) - len(unique)

	fresh := keyer.Filter(unique)
	known := len(unique) - len(fresh)
	report.Known += known
	for i := 0; i < known; i++ {
		uc.metrics.Fragment(string(kind), "known")
	}

	for _, ev := range fresh {
		keyer.Mark(ev.UID)
	}
	report.New += len(fresh)
	return fresh
}

func (uc *IngestEventsUseCase) flush(ctx context.Context, kind domain.SourceKind, events []*domain.Event, report *RunReport) error {
	if len(events) == 0 {
		return nil
	}
	er := uc.enricher.Enrich(ctx, events)
	report.Enrich.Batches += er.Batches
	report.Enrich.Delays += er.Delays
	report.Enrich.Skipped += er.Skipped
	report.Enrich.CacheHits += er.CacheHits
	report.Enrich.Found += er.Found
	report.Enrich.NotFound += er.NotFound
	report.Enrich.Failed += er.Failed

	res, err := uc.store.Store(ctx, kind, events)
	report.Inserted += res.Inserted
	report.Ignored += res.Ignored
	report.Spooled += res.Spooled
	return err
}
