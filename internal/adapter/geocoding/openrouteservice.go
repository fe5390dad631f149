// Package geocoding talks to the OpenRouteService forward geocoding API.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
	"github.com/V4T54L/agenda-ingest/internal/domain"
	"github.com/V4T54L/agenda-ingest/internal/pkg/httpx"
)

const searchPath = "/geocode/search"

// Options configures the provider client.
type Options struct {
	BaseURL     string
	APIKey      string
	CountryHint string // ISO-3166 alpha-2, sent as boundary.country
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client performs one provider call per Geocode and classifies the answer.
// Retries and rate limiting belong to the caller.
type Client struct {
	opts    Options
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
}

func NewClient(opts Options, logger *slog.Logger, m *metrics.PipelineMetrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpx.NewClient(opts.Timeout)
	}
	return &Client{
		opts:    opts,
		http:    hc,
		logger:  logger.With("component", "ors_geocoder"),
		metrics: m,
	}
}

type featureCollection struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			ID         string   `json:"id"`
			GID        string   `json:"gid"`
			Label      string   `json:"label"`
			Confidence *float64 `json:"confidence"`
			Locality   string   `json:"locality"`
			Region     string   `json:"region"`
			Country    string   `json:"country"`
		} `json:"properties"`
	} `json:"features"`
}

// Geocode maps the response onto three outcomes:
// network errors, timeouts, 429, 401/403 and 5xx are Transient; other 4xx and
// empty feature lists are NotFound. Rate limiting and key rejection are deliberately
// not treated as definitive 4xx answers: they say nothing about the address, and
// caching them as NotFound would hide the address for the whole negative TTL.
func (c *Client) Geocode(ctx context.Context, addr domain.Address) domain.GeocodeOutcome {
	start := time.Now()
	out := c.geocode(ctx, addr)
	c.metrics.Geocode(out.Status.String(), time.Since(start).Seconds())
	if out.Status == domain.GeocodeTransient {
		c.logger.Warn("Geocoding call failed", "query", addr.Query(), "error", out.Err)
	}
	return out
}

func (c *Client) geocode(ctx context.Context, addr domain.Address) domain.GeocodeOutcome {
	text := addr.Query()
	if text == "" {
		return domain.NotFound()
	}

	params := url.Values{}
	params.Set("text", text)
	params.Set("size", "1")
	if c.opts.CountryHint != "" {
		params.Set("boundary.country", c.opts.CountryHint)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Transient(fmt.Errorf("failed to build geocode request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("geocode request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Transient(fmt.Errorf("geocode provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	case resp.StatusCode >= 400:
		c.logger.Debug("Provider rejected query", "query", text, "status", resp.StatusCode)
		return domain.NotFound()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.Transient(fmt.Errorf("unexpected geocode status %d", resp.StatusCode))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.Transient(err)
		}
		return domain.Transient(fmt.Errorf("failed to decode geocode response: %w", err))
	}
	if len(fc.Features) == 0 || len(fc.Features[0].Geometry.Coordinates) < 2 {
		return domain.NotFound()
	}

	f := fc.Features[0]
	placeID := f.Properties.ID
	if placeID == "" {
		placeID = f.Properties.GID
	}
	return domain.Found(&domain.GeocodeResult{
		Latitude:    f.Geometry.Coordinates[1],
		Longitude:   f.Geometry.Coordinates[0],
		DisplayName: f.Properties.Label,
		PlaceID:     placeID,
		Confidence:  f.Properties.Confidence,
		Locality:    f.Properties.Locality,
		Region:      f.Properties.Region,
		Country:     f.Properties.Country,
	})
}
