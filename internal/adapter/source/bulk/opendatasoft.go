package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/adapter/source"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/normalize"
	"github.com/V4T54L/agenda-ingest/internal/pkg/httpx"
)

// recordsPageLimit is the largest page the explore v2.1 API serves.
const recordsPageLimit = 100

type recordsPage struct {
	TotalCount int              `json:"total_count"`
	Results    []map[string]any `json:"results"`
}

// RecordsSource pages through an Opendatasoft explore v2.1 "records" endpoint.
type RecordsSource struct {
	endpoint string
	where    string
	client   *http.Client
	opts     Options
	logger   *slog.Logger

	offset  int
	total   int
	emitted int
	done    bool
}

// NewRecordsSource reads endpoint page by page. where is an optional ODSQL filter.
func NewRecordsSource(endpoint, where string, client *http.Client, opts Options, logger *slog.Logger) *RecordsSource {
	if client == nil {
		client = httpx.NewClient(30 * time.Second)
	}
	return &RecordsSource{
		endpoint: endpoint,
		where:    where,
		client:   client,
		opts:     opts,
		logger:   logger.With("component", "opendatasoft_records"),
		total:    -1,
	}
}

func (s *RecordsSource) Next(ctx context.Context) ([]normalize.Fragment, error) {
	if s.done {
		return nil, source.ErrExhausted
	}

	limit := recordsPageLimit
	if s.opts.MaxRecords > 0 {
		if remaining := s.opts.MaxRecords - s.emitted; remaining < limit {
			limit = remaining
		}
	}
	if limit <= 0 {
		s.done = true
		return nil, source.ErrExhausted
	}

	page, err := s.fetch(ctx, limit)
	if err != nil {
		return nil, err
	}
	if s.total < 0 {
		s.total = page.TotalCount
		s.logger.Info("Reading records", "total_count", s.total, "max_records", s.opts.MaxRecords)
	}

	frags := make([]normalize.Fragment, 0, len(page.Results))
	for _, rec := range page.Results {
		frags = append(frags, normalize.Fragment{Kind: domain.SourceBulk, Row: normalize.FlattenRecord(unwrapRecord(rec))})
	}
	s.offset += len(page.Results)
	s.emitted += len(page.Results)

	if len(page.Results) == 0 || s.offset >= s.total ||
		(s.opts.MaxRecords > 0 && s.emitted >= s.opts.MaxRecords) {
		s.done = true
	}
	if len(frags) == 0 {
		return nil, source.ErrExhausted
	}
	return frags, nil
}

func (s *RecordsSource) fetch(ctx context.Context, limit int) (*recordsPage, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse records endpoint: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(s.offset))
	if s.where != "" {
		q.Set("where", s.where)
	}
	u.RawQuery = q.Encode()

	var page recordsPage
	err = httpx.Retry(ctx, 3, time.Second, 8*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &httpx.Permanent{Err: err}
		}
		req.Header.Set("Accept", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("records endpoint returned %d: %s", resp.StatusCode, body)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return &httpx.Permanent{Err: err}
			}
			return err
		}

		page = recordsPage{}
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		return dec.Decode(&page)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch records at offset %d: %w", s.offset, err)
	}
	return &page, nil
}
