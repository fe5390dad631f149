package browser

import (
	"context"
	"errors"
	"log/slog"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// Pager walks a page plan with one session, region after region. A stop signal ends
// the current region; a failed page is logged and treated as empty.
type Pager struct {
	plan    [][]string
	factory SessionFactory
	fetcher *Fetcher
	logger  *slog.Logger

	session Session
	region  int
	page    int
}

func NewPager(plan [][]string, factory SessionFactory, fetcher *Fetcher, logger *slog.Logger) *Pager {
	return &Pager{
		plan:    plan,
		factory: factory,
		fetcher: fetcher,
		logger:  logger.With("component", "pager"),
	}
}

// Next implements source.Source.
func (p *Pager) Next(ctx context.Context) ([]normalize.Fragment, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.region >= len(p.plan) {
			return nil, source.ErrExhausted
		}
		pages := p.plan[p.region]
		if p.page >= len(pages) {
			p.region++
			p.page = 0
			continue
		}

		if p.session == nil {
			s, err := p.factory(ctx)
			if err != nil {
				return nil, err
			}
			p.session = s
		}

		url := pages[p.page]
		p.page++
		frags, err := p.fetcher.FetchPage(ctx, p.session, url)
		switch {
		case errors.Is(err, ErrNoContent):
			p.logger.Info("No content on page, end of region", "url", url)
			p.region++
			p.page = 0
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Error("Failed to fetch page, treating as empty", "url", url, "error", err)
			return []normalize.Fragment{}, nil
		}
		return frags, nil
	}
}

// Close releases the browser session, if one was started.
func (p *Pager) Close() error {
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}
