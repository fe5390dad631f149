package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/agenda-ingest/internal/usecase"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// OpsHandler serves health and last-run status while an ingestion run is in progress.
type OpsHandler struct {
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	lastRun *usecase.RunReport
	lastErr string
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(checks map[string]Check, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{checks: checks, timeout: 2 * time.Second, logger: logger}
}

// RecordRun stores the report served by LastRun.
func (h *OpsHandler) RecordRun(report *usecase.RunReport, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRun = report
	h.lastErr = ""
	if err != nil {
		h.lastErr = err.Error()
	}
}

// HealthCheck runs every dependency probe.
// GET /health
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", "dependency", name, "error", err)
			body[name] = err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	h.respondWithJSON(w, status, body)
}

// LastRun returns the report of the most recent run.
// GET /status/last-run
func (h *OpsHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	report, lastErr := h.lastRun, h.lastErr
	h.mu.RUnlock()

	if report == nil {
		http.Error(w, "no run finished yet", http.StatusNotFound)
		return
	}
	h.respondWithJSON(w, http.StatusOK, struct {
		*usecase.RunReport
		Error string `json:"error,omitempty"`
	}{report, lastErr})
}

func (h *OpsHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
