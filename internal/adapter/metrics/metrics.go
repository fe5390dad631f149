package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agenda_ingest"

// PipelineMetrics holds all Prometheus metrics for one ingestion process.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	FragmentsTotal   *prometheus.CounterVec
	EventsTotal      *prometheus.CounterVec
	PagesTotal       *prometheus.CounterVec
	GeocodeTotal     *prometheus.CounterVec
	GeocodeCache     *prometheus.CounterVec
	GeocodeLatency   prometheus.Histogram
	UpsertBatches    *prometheus.CounterVec
	SpoolActive      prometheus.Gauge
	RunDuration      *prometheus.HistogramVec
	LastRunTimestamp *prometheus.GaugeVec
}

// NewPipelineMetrics registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		FragmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "fragments_total",
			Help:      "Total number of raw fragments by source and result.",
		}, []string{"source", "result"}), // result: ok, skipped, known
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "events_total",
			Help:      "Total number of events handed to storage by source and result.",
		}, []string{"source", "result"}), // result: inserted, ignored, spooled
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "pages_total",
			Help:      "Total number of listing pages fetched by result.",
		}, []string{"result"}), // result: ok, empty, error, stop
		GeocodeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "requests_total",
			Help:      "Total number of geocoding provider calls by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "cache_total",
			Help:      "Total number of geocode cache lookups by result.",
		}, []string{"result"}), // result: hit, negative_hit, miss, error
		GeocodeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "request_duration_seconds",
			Help:      "Latency of geocoding provider calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		UpsertBatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "upsert_batches_total",
			Help:      "Total number of upsert calls by status.",
		}, []string{"status"}),
		SpoolActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "spool_active_gauge",
			Help:      "Indicates if the local spool holds batches awaiting replay (1 for yes, 0 for no).",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of complete ingestion runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"mode"}),
		LastRunTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"mode"}),
	}
}

func (m *PipelineMetrics) Fragment(source, result string) {
	if m == nil {
		return
	}
	m.FragmentsTotal.WithLabelValues(source, result).Inc()
}

func (m *PipelineMetrics) Events(source, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsTotal.WithLabelValues(source, result).Add(float64(n))
}

func (m *PipelineMetrics) Page(result string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) Geocode(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.GeocodeTotal.WithLabelValues(outcome).Inc()
	m.GeocodeLatency.Observe(seconds)
}

func (m *PipelineMetrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.GeocodeCache.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) Upsert(status string) {
	if m == nil {
		return
	}
	m.UpsertBatches.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) Spool(active bool) {
	if m == nil {
		return
	}
	if active {
		m.SpoolActive.Set(1)
		return
	}
	m.SpoolActive.Set(0)
}

func (m *PipelineMetrics) RunFinished(mode string, seconds float64, unixNow int64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(mode).Observe(seconds)
	m.LastRunTimestamp.WithLabelValues(mode).Set(float64(unixNow))
}
