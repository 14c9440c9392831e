// Package metrics holds the Prometheus instruments for the detector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is registered once at startup; the detector accepts nil and skips
// observation so tests can construct detectors freely.
type Metrics struct {
	UpdatesProcessed  *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	SinkFailures      prometheus.Counter
	NotifyFailures    prometheus.Counter
	ProcessingSeconds prometheus.Histogram
	CatalogSize       prometheus.Gauge
}

// New creates and registers all detector metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		UpdatesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fencewatch_updates_processed_total",
			Help: "Location updates processed, labeled by outcome.",
		}, []string{"outcome"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fencewatch_transitions_total",
			Help: "Transition events detected, labeled by type.",
		}, []string{"type"}),
		SinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fencewatch_sink_failures_total",
			Help: "Transition events that failed to persist.",
		}),
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fencewatch_notify_failures_total",
			Help: "Transition events that failed to publish.",
		}),
		ProcessingSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fencewatch_update_processing_seconds",
			Help:    "Latency of one detection pass.",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		CatalogSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fencewatch_catalog_snapshot_size",
			Help: "Geofence count in the most recent catalog snapshot.",
		}),
	}
}

// ObserveUpdate records one processed update.
func (m *Metrics) ObserveUpdate(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesProcessed.WithLabelValues(outcome).Inc()
	m.ProcessingSeconds.Observe(elapsed.Seconds())
}

// ObserveTransition records one detected transition.
func (m *Metrics) ObserveTransition(kind string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind).Inc()
}

// ObserveSinkFailure counts one failed event append.
func (m *Metrics) ObserveSinkFailure() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

// ObserveNotifyFailure counts one failed publish.
func (m *Metrics) ObserveNotifyFailure() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

// ObserveCatalogSize records the snapshot size.
func (m *Metrics) ObserveCatalogSize(n int) {
	if m == nil {
		return
	}
	m.CatalogSize.Set(float64(n))
}
