package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

// ErrSkipped marks a fragment that could not become an event. Callers log and move on.
var ErrSkipped = errors.New("fragment skipped")

// Fragment is one raw listing as handed over by a source adapter.
type Fragment struct {
	Kind domain.SourceKind
	HTML string            // browser card markup
	Row  map[string]string // bulk row keyed by lowercase column name
}

// Options configures a Normalizer. Zero values fall back to the defaults below.
type Options struct {
	CardSelector   string
	BrowserPrefix  string
	BulkPrefix     string
	DefaultCountry string
	// Columns adds aliases on top of DefaultColumns, checked first.
	Columns map[Field][]string
	Now     func() time.Time
}

// Normalizer turns raw fragments into canonical events.
// It is safe for concurrent use.
type Normalizer struct {
	opts    Options
	columns map[Field][]string
}

func New(opts Options) *Normalizer {
	if opts.CardSelector == "" {
		opts.CardSelector = ".memo-card"
	}
	if opts.BrowserPrefix == "" {
		opts.BrowserPrefix = "infolocale"
	}
	if opts.BulkPrefix == "" {
		opts.BulkPrefix = "opendata"
	}
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = "France"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Normalizer{opts: opts, columns: mergeColumns(opts.Columns)}
}

// CardSelector returns the CSS selector that marks one listing card.
func (n *Normalizer) CardSelector() string {
	return n.opts.CardSelector
}

// Normalize dispatches on the fragment kind. Failures are reported as ErrSkipped,
// including panics raised while parsing.
func (n *Normalizer) Normalize(f Fragment) (ev *domain.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = nil, fmt.Errorf("%w: panic while parsing: %v", ErrSkipped, r)
		}
	}()

	switch f.Kind {
	case domain.SourceBrowser:
		return n.FromCard(f.HTML)
	case domain.SourceBulk:
		return n.FromRow(f.Row)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrSkipped, f.Kind)
	}
}

func (n *Normalizer) today() domain.Date {
	return domain.DateOf(n.opts.Now())
}
