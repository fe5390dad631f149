package bulk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
)

// arrayKeys are the object members that may hold the record array in a JSON export.
var arrayKeys = map[string]bool{"results": true, "records": true, "data": true, "events": true}

// JSONSource streams objects from a JSON export without loading it whole. The document
// is either a top-level array or an object holding the array under one of arrayKeys.
type JSONSource struct {
	dec     *json.Decoder
	closer  io.Closer
	opts    Options
	emitted int
	started bool
	done    bool
}

// NewJSONSource skips a leading UTF-8 BOM. If r is an io.Closer it is closed on exhaustion.
func NewJSONSource(r io.Reader, opts Options) *JSONSource {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	dec := json.NewDecoder(br)
	dec.UseNumber()
	s := &JSONSource{dec: dec, opts: opts}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *JSONSource) Next(ctx context.Context) ([]normalize.Fragment, error) {
	if s.done {
		return nil, source.ErrExhausted
	}
	if !s.started {
		if err := s.seekArray(); err != nil {
			s.finish()
			return nil, err
		}
		s.started = true
	}

	size := s.opts.chunkSize()
	frags := make([]normalize.Fragment, 0, size)
	for len(frags) < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if (s.opts.MaxRecords > 0 && s.emitted >= s.opts.MaxRecords) || !s.dec.More() {
			s.finish()
			break
		}
		var rec map[string]any
		if err := s.dec.Decode(&rec); err != nil {
			s.finish()
			return nil, fmt.Errorf("decode json record: %w", err)
		}
		rec = unwrapRecord(rec)
		frags = append(frags, normalize.Fragment{Kind: domain.SourceBulk, Row: normalize.FlattenRecord(rec)})
		s.emitted++
	}
	if len(frags) == 0 && s.done {
		return nil, source.ErrExhausted
	}
	return frags, nil
}

// unwrapRecord lifts the field map out of the older Opendatasoft shapes
// ({"recordid": .., "fields": {..}} and {"record": {"id": .., "fields": {..}}}).
func unwrapRecord(rec map[string]any) map[string]any {
	if inner, ok := rec["record"].(map[string]any); ok {
		rec = inner
	}
	fields, ok := rec["fields"].(map[string]any)
	if !ok {
		return rec
	}
	for _, idKey := range []string{"recordid", "id"} {
		if id, ok := rec[idKey]; ok {
			if _, taken := fields["recordid"]; !taken {
				fields["recordid"] = id
			}
		}
	}
	return fields
}

// seekArray positions the decoder just inside the record array.
func (s *JSONSource) seekArray() error {
	tok, err := s.dec.Token()
	if err != nil {
		return fmt.Errorf("read json start: %w", err)
	}
	switch tok {
	case json.Delim('['):
		return nil
	case json.Delim('{'):
	default:
		return fmt.Errorf("unexpected json start %v", tok)
	}

	for s.dec.More() {
		keyTok, err := s.dec.Token()
		if err != nil {
			return fmt.Errorf("read json key: %w", err)
		}
		key, _ := keyTok.(string)
		if arrayKeys[key] {
			tok, err := s.dec.Token()
			if err != nil {
				return fmt.Errorf("read json array: %w", err)
			}
			if tok == json.Delim('[') {
				return nil
			}
			return fmt.Errorf("json member %q is not an array", key)
		}
		var skip json.RawMessage
		if err := s.dec.Decode(&skip); err != nil {
			return fmt.Errorf("skip json member %q: %w", key, err)
		}
	}
	return errors.New("json document holds no record array")
}

func (s *JSONSource) finish() {
	s.done = true
	_ = s.Close()
}

func (s *JSONSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
