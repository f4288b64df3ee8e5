// Package metrics exposes Prometheus counters for the validation core and
// the external adapters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jbio/internal/bioerr"
)

// Metrics groups every collector the module records to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Validations     *prometheus.CounterVec
	Alignments      *prometheus.CounterVec
	AdapterFetches  *prometheus.CounterVec
	AdapterDuration *prometheus.HistogramVec
	Commits         *prometheus.CounterVec
	Proteins        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jbio",
				Subsystem: "validate",
				Name:      "total",
				Help:      "Consistency validations by outcome kind",
			},
			[]string{"outcome"},
		),
		Alignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jbio",
				Subsystem: "align",
				Name:      "total",
				Help:      "Alignments by outcome (reconciled, rejected, error)",
			},
			[]string{"outcome"},
		),
		AdapterFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jbio",
				Subsystem: "adapter",
				Name:      "fetches_total",
				Help:      "External adapter calls by adapter and status",
			},
			[]string{"adapter", "status"},
		),
		AdapterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "jbio",
				Subsystem: "adapter",
				Name:      "duration_seconds",
				Help:      "External adapter call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"adapter"},
		),
		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jbio",
				Subsystem: "registry",
				Name:      "commits_total",
				Help:      "Registry commits by result (created, extended, unchanged, rejected)",
			},
			[]string{"result"},
		),
		Proteins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jbio",
				Subsystem: "registry",
				Name:      "proteins",
				Help:      "Number of registered proteins",
			},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.Validations, m.Alignments, m.AdapterFetches, m.AdapterDuration, m.Commits, m.Proteins)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for tests and gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome labels err by its bioerr kind, "ok" for nil.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return bioerr.KindOf(err).String()
}

// ObserveValidation counts one validation.
func (m *Metrics) ObserveValidation(err error) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(Outcome(err)).Inc()
}

// ObserveAlignment counts one alignment.
func (m *Metrics) ObserveAlignment(outcome string) {
	if m == nil {
		return
	}
	m.Alignments.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one adapter call.
func (m *Metrics) ObserveFetch(adapter string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AdapterFetches.WithLabelValues(adapter, status).Inc()
	m.AdapterDuration.WithLabelValues(adapter).Observe(seconds)
}

// ObserveCommit records one registry commit and the resulting protein count.
func (m *Metrics) ObserveCommit(result string, proteins int) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(result).Inc()
	m.Proteins.Set(float64(proteins))
}
