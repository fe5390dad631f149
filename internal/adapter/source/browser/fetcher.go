package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// KnownChecker answers whether a uid is already stored.
type KnownChecker interface {
	Seen(uid string) bool
}

// Fetcher turns one rendered listing page into card fragments.
type Fetcher struct {
	normalizer *normalize.Normalizer
	known      KnownChecker
	logger     *slog.Logger
	metrics    *metrics.PipelineMetrics
}

func NewFetcher(n *normalize.Normalizer, known KnownChecker, logger *slog.Logger, m *metrics.PipelineMetrics) *Fetcher {
	return &Fetcher{
		normalizer: n,
		known:      known,
		logger:     logger.With("component", "page_fetcher"),
		metrics:    m,
	}
}

// FetchPage renders url with session and returns one fragment per unknown card.
// The result is tri-state: fragments, an empty slice when every card is already
// stored, or ErrNoContent when the page shows no card at all.
func (f *Fetcher) FetchPage(ctx context.Context, session Session, url string) ([]normalize.Fragment, error) {
	html, err := session.Render(ctx, url)
	if errors.Is(err, ErrNoContent) {
		f.metrics.Page("stop")
		return nil, ErrNoContent
	}
	if err != nil {
		f.metrics.Page("error")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		f.metrics.Page("error")
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	cards := doc.Find(f.normalizer.CardSelector())
	if cards.Length() == 0 {
		f.metrics.Page("stop")
		return nil, ErrNoContent
	}

	frags := make([]normalize.Fragment, 0, cards.Length())
	known := 0
	cards.Each(func(_ int, card *goquery.Selection) {
		if uid := f.normalizer.CardUID(card); uid != "" && f.known != nil && f.known.Seen(uid) {
			known++
			f.metrics.Fragment(string(domain.SourceBrowser), "known")
			return
		}
		outer, err := goquery.OuterHtml(card)
		if err != nil {
			f.logger.Warn("Failed to serialize card, skipping", "url", url, "error", err)
			return
		}
		frags = append(frags, normalize.Fragment{Kind: domain.SourceBrowser, HTML: outer})
	})

	if len(frags) == 0 {
		f.metrics.Page("empty")
	} else {
		f.metrics.Page("ok")
	}
	f.logger.Info("Fetched page", "url", url, "cards", cards.Length(), "known", known, "new", len(frags))
	return frags, nil
}
