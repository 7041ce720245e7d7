// Package observability holds lucid's metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a private registry of the pipeline's metrics. A nil *Metrics
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	phaseSeconds    *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	modules         prometheus.Gauge
	definitions     prometheus.Gauge
	unrepresentable *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		phaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lucid_phase_seconds",
			Help:    "Time spent in each pipeline phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lucid_runs_total",
			Help: "Pipeline runs by result.",
		}, []string{"result"}),
		modules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lucid_modules",
			Help: "Modules in the latest snapshot.",
		}),
		definitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lucid_definitions",
			Help: "Definitions in the latest snapshot.",
		}),
		unrepresentable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lucid_unrepresentable_total",
			Help: "Scope entries that could not be classified, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.phaseSeconds, m.runs, m.modules, m.definitions, m.unrepresentable)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) RecordRun(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSnapshot(modules, definitions int) {
	if m == nil {
		return
	}
	m.modules.Set(float64(modules))
	m.definitions.Set(float64(definitions))
}

func (m *Metrics) AddUnrepresentable(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.unrepresentable.WithLabelValues(reason).Add(float64(n))
}

// WriteTextfile writes the registry in the Prometheus text format, for a
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
