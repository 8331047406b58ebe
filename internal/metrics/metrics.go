// Package metrics exposes pipeline counters and histograms for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ChunksRetrieved *prometheus.CounterVec
	Stage1Passed    prometheus.Counter
	Detections      *prometheus.CounterVec
	MasterUpdates   prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		ChunksRetrieved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_chunks_retrieved_total",
			Help: "Deduplicated chunks retrieved, by catalyst type.",
		}, []string{"catalyst_type"}),
		Stage1Passed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalyst_stage1_passed_total",
			Help: "Chunks judged catalyst-relevant by Stage-1.",
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_detections_total",
			Help: "Resolved detections written, by lifecycle state.",
		}, []string{"state"}),
		MasterUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalyst_master_updates_total",
			Help: "Master rows rewritten by compaction.",
		}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalyst_session_errors_total",
			Help: "Session errors, by error kind.",
		}, []string{"kind"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalyst_session_duration_seconds",
			Help:    "Wall time of one session.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.ChunksRetrieved,
		m.Stage1Passed,
		m.Detections,
		m.MasterUpdates,
		m.SessionErrors,
		m.SessionDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Session records one finished session. A nil receiver is a no-op.
func (m *Metrics) Session(catalystType string, retrieved, passed int, states map[string]int, masterUpdates int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChunksRetrieved.WithLabelValues(catalystType).Add(float64(retrieved))
	m.Stage1Passed.Add(float64(passed))
	for state, n := range states {
		m.Detections.WithLabelValues(state).Add(float64(n))
	}
	m.MasterUpdates.Add(float64(masterUpdates))
	m.SessionDuration.Observe(elapsed.Seconds())
}

// Error counts one session error of the given kind. A nil receiver is a no-op.
func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.SessionErrors.WithLabelValues(kind).Inc()
}
