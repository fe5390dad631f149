// Package scheduler fans page fetching out over a fixed pool of browser workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/adapter/source/browser"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// Partition deals urls to workers round-robin: worker i gets urls[i], urls[i+n], ...
func Partition(urls []string, workers int) [][]string {
	if workers < 1 {
		workers = 1
	}
	if workers > len(urls) {
		workers = len(urls)
	}
	parts := make([][]string, workers)
	for i, u := range urls {
		parts[i%workers] = append(parts[i%workers], u)
	}
	return parts
}

// Scheduler runs one worker per partition. Each worker owns its own browser session for
// the whole partition. Worker failures are logged and never cancel siblings.
type Scheduler struct {
	urls    []string
	workers int
	factory browser.SessionFactory
	fetcher *browser.Fetcher
	logger  *slog.Logger
	done    bool
}

func New(urls []string, workers int, factory browser.SessionFactory, fetcher *browser.Fetcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		urls:    urls,
		workers: workers,
		factory: factory,
		fetcher: fetcher,
		logger:  logger.With("component", "fetch_scheduler"),
	}
}

// Fetch runs every partition to completion and concatenates the fragments in worker order.
// It fails only when no worker could start a browser session.
func (s *Scheduler) Fetch(ctx context.Context) ([]normalize.Fragment, error) {
	parts := Partition(s.urls, s.workers)
	if len(parts) == 0 {
		return nil, nil
	}
	results := make([][]normalize.Fragment, len(parts))

	var (
		mu          sync.Mutex
		startErrors []error
	)

	// Plain Group, not WithContext: one worker's failure must not cancel the others.
	var g errgroup.Group
	for i, part := range parts {
		g.Go(func() error {
			frags, err := s.runWorker(ctx, i, part)
			results[i] = frags
			if err != nil {
				mu.Lock()
				startErrors = append(startErrors, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(startErrors) == len(parts) {
		return nil, fmt.Errorf("no fetch worker could start: %w", errors.Join(startErrors...))
	}

	var all []normalize.Fragment
	for _, r := range results {
		all = append(all, r...)
	}
	s.logger.Info("Parallel fetch finished", "workers", len(parts), "pages", len(s.urls), "fragments", len(all))
	return all, nil
}

// runWorker returns an error only when its session could not be started.
func (s *Scheduler) runWorker(ctx context.Context, id int, urls []string) (frags []normalize.Fragment, err error) {
	logger := s.logger.With("worker", id)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker panicked, partition abandoned", "panic", r)
		}
	}()

	session, err := s.factory(ctx)
	if err != nil {
		logger.Error("Failed to start browser session", "error", err)
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("Failed to close browser session", "error", cerr)
		}
	}()

	for _, url := range urls {
		if ctx.Err() != nil {
			return frags, nil
		}
		page, err := s.fetcher.FetchPage(ctx, session, url)
		if errors.Is(err, browser.ErrNoContent) {
			logger.Info("No content on page, stopping partition", "url", url)
			return frags, nil
		}
		if err != nil {
			logger.Error("Failed to fetch page, continuing", "url", url, "error", err)
			continue
		}
		frags = append(frags, page...)
	}
	return frags, nil
}

// Next implements source.Source: the first call runs the whole fetch, later calls report exhaustion.
func (s *Scheduler) Next(ctx context.Context) ([]normalize.Fragment, error) {
	if s.done {
		return nil, source.ErrExhausted
	}
	s.done = true
	frags, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if frags == nil {
		frags = []normalize.Fragment{}
	}
	return frags, nil
}
