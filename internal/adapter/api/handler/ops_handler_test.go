package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/V4T54L/agenda-ingest/internal/usecase"
)

func TestOpsHandler_HealthCheck(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		checks         map[string]Check
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "No Dependencies",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok"}`,
		},
		{
			name: "All Healthy",
			checks: map[string]Check{
				"database": func(ctx context.Context) error { return nil },
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"database":"ok","status":"ok"}`,
		},
		{
			name: "Cache Down",
			checks: map[string]Check{
				"database":      func(ctx context.Context) error { return nil },
				"geocode_cache": func(ctx context.Context) error { return errors.New("connection refused") },
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"database":"ok","geocode_cache":"connection refused","status":"degraded"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewOpsHandler(tc.checks, logger)
			rr := httptest.NewRecorder()

			h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tc.expectedStatus {
				t.Errorf("expected status %d, got %d", tc.expectedStatus, rr.Code)
			}
			if got := strings.TrimSpace(rr.Body.String()); got != tc.expectedBody {
				t.Errorf("expected body %s, got %s", tc.expectedBody, got)
			}
		})
	}
}

func TestOpsHandler_LastRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewOpsHandler(nil, logger)

	rr := httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/status/last-run", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404 before any run, got %d", rr.Code)
	}

	h.RecordRun(&usecase.RunReport{RunID: "r1", Inserted: 3}, errors.New("read source: boom"))
	rr = httptest.NewRecorder()
	h.LastRun(rr, httptest.NewRequest(http.MethodGet, "/status/last-run", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"RunID":"r1"`) || !strings.Contains(body, `"Inserted":3`) {
		t.Errorf("expected report fields in body, got %s", body)
	}
	if !strings.Contains(body, `"error":"read source: boom"`) {
		t.Errorf("expected run error in body, got %s", body)
	}
}
