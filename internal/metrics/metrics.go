// Package metrics holds the Prometheus collectors of the oracle service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"storemodel/internal/model"
)

const namespace = "storemodel"

// Metrics contains the collectors updated by the API server.
type Metrics struct {
	Operations   *prometheus.CounterVec
	Sessions     prometheus.Gauge
	UsedRatio    prometheus.Histogram
	JournalFails prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them, along with the Go runtime
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "model",
				Name:      "operations_total",
				Help:      "Operations applied to oracle sessions, by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "sessions",
			Help:      "Number of live oracle sessions",
		}),
		UsedRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "used_ratio",
			Help:      "Fraction of logical capacity used after each successful operation",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		JournalFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "append_failures_total",
			Help:      "Records that could not be appended to a session journal",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Operations,
		m.Sessions,
		m.UsedRatio,
		m.JournalFails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records one applied operation.
func (m *Metrics) Observe(op model.Operation, outcome model.Outcome, capacity model.Ratio) {
	m.Operations.WithLabelValues(op.Kind().String(), outcome.String()).Inc()
	if outcome == model.OutcomeOK && capacity.Total > 0 {
		m.UsedRatio.Observe(float64(capacity.Used) / float64(capacity.Total))
	}
}
