// Package metrics holds the prometheus instruments for collection and storage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	// Collector
	ProbeDuration *prometheus.HistogramVec
	ProbeFailures *prometheus.CounterVec
	Collections   prometheus.Counter

	// Log store
	Appends        *prometheus.CounterVec // result=success|error
	SkippedLines   prometheus.Counter
	CleanupRemoved prometheus.Counter

	// Analysis of the most recent cycle
	LastCollection prometheus.Gauge
	Anomalies      *prometheus.GaugeVec
}

// New registers all instruments on reg. A nil registry gets a private one so
// components can always record without checking.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ProbeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homewatch_probe_duration_seconds",
			Help:    "Duration of individual subsystem probes.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"probe"}),

		ProbeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homewatch_probe_failures_total",
			Help: "Probe calls that failed, timed out or were short-circuited.",
		}, []string{"probe"}),

		Collections: f.NewCounter(prometheus.CounterOpts{
			Name: "homewatch_collections_total",
			Help: "Snapshots assembled by the collector.",
		}),

		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homewatch_log_appends_total",
			Help: "Snapshot appends by result.",
		}, []string{"result"}),

		SkippedLines: f.NewCounter(prometheus.CounterOpts{
			Name: "homewatch_log_skipped_lines_total",
			Help: "Corrupt log lines skipped while reading.",
		}),

		CleanupRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "homewatch_log_cleanup_removed_total",
			Help: "Snapshots removed by retention cleanup.",
		}),

		LastCollection: f.NewGauge(prometheus.GaugeOpts{
			Name: "homewatch_last_collection_timestamp_seconds",
			Help: "Unix time of the last appended snapshot.",
		}),

		Anomalies: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homewatch_anomalies",
			Help: "Anomalies detected over the recent analysis window, by severity.",
		}, []string{"severity"}),
	}
}

// WriteTextfile dumps the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
