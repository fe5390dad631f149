// Package source defines the capability shared by every listing producer.
package source

import (
	"context"
	"errors"
	"io"

	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// ErrExhausted is returned by Next once a source has nothing more to produce.
var ErrExhausted = errors.New("source exhausted")

// Source produces raw fragments one page or chunk at a time.
// An empty, non-nil slice means "nothing new here, keep going"; ErrExhausted means stop.
type Source interface {
	Next(ctx context.Context) ([]normalize.Fragment, error)
}

// Close releases the source if it holds resources.
func Close(s Source) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Static serves a fixed list of pages, then ErrExhausted. Useful for replaying captured input.
type Static struct {
	Pages [][]normalize.Fragment
	next  int
}

func (s *Static) Next(ctx context.Context) ([]normalize.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.Pages) {
		return nil, ErrExhausted
	}
	page := s.Pages[s.next]
	s.next++
	if page == nil {
		page = []normalize.Fragment{}
	}
	return page, nil
}
