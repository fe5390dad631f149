package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/agenda-ingest/internal/adapter/api/handler"
	"github.com/V4T54L/agenda-ingest/internal/adapter/metrics"
)

func TestOpsRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewPipelineMetrics(reg)
	m.Page("ok")

	srv := httptest.NewServer(NewOpsRouter(handler.NewOpsHandler(nil, logger), reg, logger))
	defer srv.Close()

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), `agenda_ingest_fetch_pages_total{result="ok"} 1`) {
			t.Errorf("expected page counter in metrics output, got %s", body)
		}
	})

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Unknown Route", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/health", "application/json", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", resp.StatusCode)
		}
	})
}
