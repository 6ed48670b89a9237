// Package metrics exposes Prometheus counters for document generation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Render outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics owns a private registry so tests can create independent instances.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	documentsCreated *prometheus.CounterVec
	renders          *prometheus.CounterVec
	renderDuration   *prometheus.HistogramVec
	prerenderJobs    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		documentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "howdo",
			Name:      "documents_created_total",
			Help:      "Documents created from wizard submissions, by document type.",
		}, []string{"type"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "howdo",
			Name:      "renders_total",
			Help:      "Document renders by requested format and outcome.",
		}, []string{"format", "outcome"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "howdo",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a document, by requested format.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"format"}),
		prerenderJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "howdo",
			Name:      "prerender_jobs_total",
			Help:      "Background prerender jobs by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.documentsCreated,
		m.renders,
		m.renderDuration,
		m.prerenderJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) DocumentCreated(docType string) {
	if m == nil {
		return
	}
	m.documentsCreated.WithLabelValues(docType).Inc()
}

func (m *Metrics) RenderObserved(format, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(format, outcome).Inc()
	m.renderDuration.WithLabelValues(format).Observe(d.Seconds())
}

func (m *Metrics) PrerenderObserved(outcome string) {
	if m == nil {
		return
	}
	m.prerenderJobs.WithLabelValues(outcome).Inc()
}
