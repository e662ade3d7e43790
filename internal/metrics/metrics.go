// Package metrics exposes engine and reconciler counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "focusgate"

// Metrics holds all Prometheus collectors on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	Transitions            *prometheus.CounterVec
	EmergencyUnblocks      prometheus.Counter
	SnapshotWriteFailures  *prometheus.CounterVec
	ReconcilerActions      *prometheus.CounterVec
	ReconcilerWakeDuration prometheus.Histogram
	SessionActive          prometheus.Gauge
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Session engine operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		EmergencyUnblocks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emergency_unblocks_total",
				Help:      "Emergency unblocks consumed",
			},
		),
		SnapshotWriteFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_write_failures_total",
				Help:      "Failed writes to the shared snapshot store",
			},
			[]string{"key"},
		),
		ReconcilerActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciler_actions_total",
				Help:      "Actions taken by the reconciler",
			},
			[]string{"action"},
		),
		ReconcilerWakeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconciler_wake_duration_seconds",
				Help:      "Duration of one reconciler wake",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		SessionActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_active",
				Help:      "1 while a focus session is running",
			},
		),
	}
}

func (m *Metrics) RecordTransition(op, outcome string) {
	m.Transitions.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) RecordEmergencyUnblock() {
	m.EmergencyUnblocks.Inc()
}

func (m *Metrics) RecordSnapshotWriteFailure(key string) {
	m.SnapshotWriteFailures.WithLabelValues(key).Inc()
}

func (m *Metrics) SetSessionActive(active bool) {
	if active {
		m.SessionActive.Set(1)
		return
	}
	m.SessionActive.Set(0)
}

func (m *Metrics) RecordReconcilerAction(action string) {
	m.ReconcilerActions.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveReconcilerWake(seconds float64) {
	m.ReconcilerWakeDuration.Observe(seconds)
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
