// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes Prometheus collectors for registry polling and
// serves them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "manylinux_inspector"

// Outcome labels for inspections.
const (
	OutcomeInspected = "inspected"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors of one process. Each instance owns its
// registry, so tests can create as many as they like.
type Metrics struct {
	Passes             prometheus.Counter
	PassFailures       prometheus.Counter
	LastPass           prometheus.Gauge
	Inspections        *prometheus.CounterVec
	InspectionDuration prometheus.Histogram
	LatestWrites       prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_passes_total",
			Help:      "Total number of completed registry polling passes",
		}),
		PassFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_pass_failures_total",
			Help:      "Total number of polling passes that could not list the registry",
		}),
		LastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_last_pass_timestamp_seconds",
			Help:      "Unix time of the last completed polling pass",
		}),
		Inspections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspections_total",
			Help:      "Total number of image inspections by outcome",
		}, []string{"outcome"}),
		InspectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inspection_duration_seconds",
			Help:      "Time spent probing one image",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LatestWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latest_index_writes_total",
			Help:      "Total number of times the latest-tags index changed on disk",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.Passes,
		m.PassFailures,
		m.LastPass,
		m.Inspections,
		m.InspectionDuration,
		m.LatestWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordInspection counts one inspection. Only inspections that ran a probe
// are observed in the duration histogram.
func (m *Metrics) RecordInspection(outcome string, d time.Duration) {
	m.Inspections.WithLabelValues(outcome).Inc()
	if outcome == OutcomeInspected {
		m.InspectionDuration.Observe(d.Seconds())
	}
}

// RecordPass counts one completed polling pass.
func (m *Metrics) RecordPass(at time.Time, latestWritten bool) {
	m.Passes.Inc()
	m.LastPass.Set(float64(at.Unix()))
	if latestWritten {
		m.LatestWrites.Inc()
	}
}

// RecordPassFailure counts a pass that aborted before inspecting anything.
func (m *Metrics) RecordPassFailure() {
	m.PassFailures.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
