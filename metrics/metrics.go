// Package metrics exposes operational counters for the scan pipeline over a
// Prometheus endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. A nil *Metrics is valid and records
// nothing, so callers never need to guard instrumentation sites.
type Metrics struct {
	registry *prometheus.Registry

	scanCycles     prometheus.Counter
	scanFailures   prometheus.Counter
	filesProcessed prometheus.Counter
	filesSkipped   prometheus.Counter
	filesFailed    prometheus.Counter
	alertsSent     prometheus.Counter
	retryAttempts  prometheus.Counter
	flushFailures  prometheus.Counter
	riskScores     prometheus.Histogram
}

// New creates a Metrics set on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		scanCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_scan_cycles_total",
			Help: "Completed scan cycles.",
		}),
		scanFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_scan_failures_total",
			Help: "Scan cycles that aborted with an error.",
		}),
		filesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_files_processed_total",
			Help: "Documents analyzed and marked processed.",
		}),
		filesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_files_skipped_total",
			Help: "Documents skipped because they were already processed.",
		}),
		filesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_files_failed_total",
			Help: "Documents that failed extraction or analysis.",
		}),
		alertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_alerts_sent_total",
			Help: "High-risk alerts delivered.",
		}),
		retryAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_retry_attempts_total",
			Help: "Retries of outbound calls after transient failures.",
		}),
		flushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "contractwatch_tracker_flush_failures_total",
			Help: "Failed attempts to persist the processed-file state.",
		}),
		riskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contractwatch_risk_score",
			Help:    "Risk scores of analyzed contracts.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanCycle() {
	if m != nil {
		m.scanCycles.Inc()
	}
}

func (m *Metrics) ScanFailure() {
	if m != nil {
		m.scanFailures.Inc()
	}
}

func (m *Metrics) FileProcessed(riskScore int) {
	if m != nil {
		m.filesProcessed.Inc()
		m.riskScores.Observe(float64(riskScore))
	}
}

func (m *Metrics) FileSkipped() {
	if m != nil {
		m.filesSkipped.Inc()
	}
}

func (m *Metrics) FileFailed() {
	if m != nil {
		m.filesFailed.Inc()
	}
}

func (m *Metrics) AlertSent() {
	if m != nil {
		m.alertsSent.Inc()
	}
}

func (m *Metrics) RetryAttempt() {
	if m != nil {
		m.retryAttempts.Inc()
	}
}

func (m *Metrics) FlushFailure() {
	if m != nil {
		m.flushFailures.Inc()
	}
}
