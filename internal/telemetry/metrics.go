// Package telemetry exposes the pipeline's Prometheus metrics.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	UploadsAccepted = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_uploads_accepted_total", Help: "Uploads accepted into the pipeline"})
	UploadsRejected = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_uploads_rejected_total", Help: "Uploads rejected at intake"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_jobs_completed_total", Help: "Jobs that produced a receipt"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_jobs_failed_total", Help: "Jobs that ended in failure"})
	FullTierRuns    = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_full_tier_runs_total", Help: "Jobs escalated to the full recognition tier"})
	NeedsReview     = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_needs_review_total", Help: "Receipts flagged for manual review"})
	DiagBundles     = prometheus.NewCounter(prometheus.CounterOpts{Name: "receipts_diag_bundles_total", Help: "Diagnostic bundles written"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{Name: "receipts_queue_depth", Help: "Jobs waiting in the in-process queue"})

	Confidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipts_confidence",
		Help:    "Final composite confidence of completed jobs",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
	ProcessSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipts_process_seconds",
		Help:    "Wall time per processed job",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			UploadsAccepted,
			UploadsRejected,
			JobsCompleted,
			JobsFailed,
			FullTierRuns,
			NeedsReview,
			DiagBundles,
			QueueDepth,
			Confidence,
			ProcessSeconds,
		)
	})
	return promhttp.Handler()
}
