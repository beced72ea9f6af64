// Package metrics defines the Prometheus instrumentation for the analyzer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubeseg_analyses_total",
			Help: "Total number of analysis runs by kind",
		},
		[]string{"kind"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kubeseg_analysis_duration_seconds",
			Help:    "Duration of analysis runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubeseg_findings_total",
			Help: "Total findings produced by analysis runs, by finding type",
		},
		[]string{"kind", "finding"},
	)

	// Snapshot metrics
	SnapshotRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubeseg_snapshot_records",
			Help: "Number of records in the loaded snapshot by record type",
		},
		[]string{"type"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubeseg_http_requests_total",
			Help: "Total HTTP requests by path and status code",
		},
		[]string{"path", "code"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kubeseg_http_rate_limited_total",
			Help: "Total HTTP requests rejected by the per-client rate limiter",
		},
	)
)
