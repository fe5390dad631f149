package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/agenda-ingest/internal/adapter/api/handler"
	"github.com/V4T54L/agenda-ingest/internal/adapter/api/middleware"
)

// NewOpsRouter creates the router for the ops server: health, last-run status and metrics.
func NewOpsRouter(ops *handler.OpsHandler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", ops.HealthCheck)
	mux.HandleFunc("GET /status/last-run", ops.LastRun)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return middleware.Logging(logger)(mux)
}
