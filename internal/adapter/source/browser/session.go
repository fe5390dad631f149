// Package browser drives a headless browser over paginated listing pages.
package browser

import (
	"context"
	"errors"
)

// ErrNoContent means the page rendered no listing card before the wait timeout.
// It is the end-of-listing signal.
var ErrNoContent = errors.New("no content marker rendered")

// Session is one stateful browser tab. It is owned by a single worker and never shared.
type Session interface {
	// Render loads url, waits for the first listing card, triggers lazy loading and
	// returns the document HTML.
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// SessionFactory starts a new Session. Callers must Close what they acquire.
type SessionFactory func(ctx context.Context) (Session, error)
