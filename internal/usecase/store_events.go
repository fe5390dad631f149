package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
	"github.com/V4T54L/agenda-ingest/internal/domain"
)

const (
	defaultStoreRetryCount   = 3
	defaultStoreRetryBackoff = 1 * time.Second
)

// StoreResult counts what one Store call did with a batch.
type StoreResult struct {
	Inserted int
	Ignored  int
	Spooled  int
}

// StoreEventsUseCase writes enriched batches to the event repository. A batch the
// repository rejects as a whole goes to the spool instead of being dropped.
type StoreEventsUseCase struct {
	repo         domain.EventRepository
	spool        domain.SpoolRepository
	logger       *slog.Logger
	metrics      *metrics.PipelineMetrics
	retryCount   int
	retryBackoff time.Duration
}

// NewStoreEventsUseCase creates the store stage. spool may be nil, in which case a
// failed batch is returned as an error.
func NewStoreEventsUseCase(repo domain.EventRepository, spool domain.SpoolRepository, logger *slog.Logger, m *metrics.PipelineMetrics) *StoreEventsUseCase {
	return &StoreEventsUseCase{
		repo:         repo,
		spool:        spool,
		logger:       logger.With("component", "store"),
		metrics:      m,
		retryCount:   defaultStoreRetryCount,
		retryBackoff: defaultStoreRetryBackoff,
	}
}

// Store upserts events and reports how many were new. Conflicts on uid are counted
// as ignored, never as errors.
func (uc *StoreEventsUseCase) Store(ctx context.Context, source domain.SourceKind, events []*domain.Event) (StoreResult, error) {
	var res StoreResult
	if len(events) == 0 {
		return res, nil
	}

	inserted, err := uc.upsertWithRetry(ctx, events)
	if err == nil {
		uc.metrics.Upsert("ok")
		res.Inserted = inserted
		res.Ignored = len(events) - inserted
		uc.metrics.Events(string(source), "inserted", res.Inserted)
		uc.metrics.Events(string(source), "ignored", res.Ignored)
		uc.logger.Debug("Stored batch", "count", len(events), "inserted", inserted)
		return res, nil
	}

	uc.metrics.Upsert("error")
	uc.logger.Error("Failed to store batch after retries", "count", len(events), "error", err)
	if uc.spool == nil {
		return res, fmt.Errorf("store batch: %w", err)
	}
	if spoolErr := uc.spool.Write(ctx, events); spoolErr != nil {
		return res, fmt.Errorf("store batch: %w (spool: %v)", err, spoolErr)
	}
	uc.metrics.Spool(true)
	uc.metrics.Events(string(source), "spooled", len(events))
	uc.logger.Warn("Batch written to spool for the next run", "count", len(events))
	res.Spooled = len(events)
	return res, nil
}

// ReplaySpool hands every spooled batch to the repository, then truncates the spool.
// It stops at the first batch the repository still rejects, keeping the spool intact.
func (uc *StoreEventsUseCase) ReplaySpool(ctx context.Context) (int, error) {
	if uc.spool == nil {
		return 0, nil
	}
	inserted, batches := 0, 0
	err := uc.spool.Replay(ctx, func(events []*domain.Event) error {
		n, err := uc.repo.Upsert(ctx, events)
		if err != nil {
			return err
		}
		inserted += n
		batches++
		return nil
	})
	if err != nil {
		uc.logger.Error("Spool replay failed, keeping spool for the next run", "replayed_batches", batches, "error", err)
		return inserted, fmt.Errorf("replay spool: %w", err)
	}
	if err := uc.spool.Truncate(ctx); err != nil {
		return inserted, fmt.Errorf("truncate spool: %w", err)
	}
	uc.metrics.Spool(false)
	if batches > 0 {
		uc.logger.Info("Replayed spool", "batches", batches, "inserted", inserted)
	}
	return inserted, nil
}

func (uc *StoreEventsUseCase) upsertWithRetry(ctx context.Context, events []*domain.Event) (int, error) {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		n, err := uc.repo.Upsert(ctx, events)
		if err == nil {
			return n, nil
		}
		lastErr = err
		uc.logger.Warn("Failed to upsert batch, retrying", "attempt", i+1, "error", err)
		if i == uc.retryCount-1 {
			break
		}
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, lastErr
}
