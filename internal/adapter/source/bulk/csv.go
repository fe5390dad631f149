package bulk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

const sniffBytes = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSource streams rows of a CSV export in chunks.
type CSVSource struct {
	reader  *csv.Reader
	closer  io.Closer
	header  []string
	opts    Options
	emitted int
	done    bool
}

// NewCSVSource reads the header immediately. The delimiter is ';' when one appears in
// the first 4KB, ',' otherwise. If r is an io.Closer it is closed on exhaustion.
func NewCSVSource(r io.Reader, opts Options) (*CSVSource, error) {
	br := bufio.NewReaderSize(r, sniffBytes)
	peek, err := br.Peek(sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read csv head: %w", err)
	}

	delim := sniffDelimiter(peek)
	if bytes.HasPrefix(peek, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = normalize.ColumnKey(h)
	}

	s := &CSVSource{reader: cr, header: header, opts: opts}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

func sniffDelimiter(head []byte) rune {
	if bytes.IndexByte(head, ';') >= 0 {
		return ';'
	}
	return ','
}

// Header returns the normalized column names.
func (s *CSVSource) Header() []string {
	return s.header
}

func (s *CSVSource) Next(ctx context.Context) ([]normalize.Fragment, error) {
	if s.done {
		return nil, source.ErrExhausted
	}
	size := s.opts.chunkSize()
	frags := make([]normalize.Fragment, 0, size)
	for len(frags) < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.opts.MaxRecords > 0 && s.emitted >= s.opts.MaxRecords {
			s.finish()
			break
		}
		rec, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			s.finish()
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				// A malformed line loses only itself.
				continue
			}
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		row := make(map[string]string, len(s.header))
		for i, col := range s.header {
			if i < len(rec) && col != "" {
				row[col] = rec[i]
			}
		}
		frags = append(frags, normalize.Fragment{Kind: domain.SourceBulk, Row: row})
		s.emitted++
	}
	if len(frags) == 0 && s.done {
		return nil, source.ErrExhausted
	}
	return frags, nil
}

func (s *CSVSource) finish() {
	s.done = true
	_ = s.Close()
}

func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
