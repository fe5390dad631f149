package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetrics(t *testing.T) {
	m := NewPipelineMetrics(prometheus.NewRegistry())

	m.Events("bulk", "inserted", 3)
	m.Events("bulk", "inserted", 0)
	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.Spool(true)

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("bulk", "inserted")); got != 3 {
		t.Errorf("events inserted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SpoolActive); got != 1 {
		t.Errorf("spool gauge = %v, want 1", got)
	}
}

func TestPipelineMetrics_Nil(t *testing.T) {
	var m *PipelineMetrics
	m.Fragment("browser", "ok")
	m.Events("browser", "inserted", 1)
	m.Page("ok")
	m.Geocode("found", 0.1)
	m.CacheLookup("miss")
	m.Upsert("ok")
	m.Spool(false)
	m.RunFinished("scrape", 1, 0)
}
