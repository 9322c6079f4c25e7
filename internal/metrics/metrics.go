// Package metrics provides Prometheus metrics for backend operations.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backendOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qabel_backend_operations_total",
			Help: "Total number of block backend operations",
		},
		[]string{"backend", "operation", "success"},
	)

	backendOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qabel_backend_operation_duration_seconds",
			Help:    "Block backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	commitConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qabel_commit_conflicts_total",
			Help: "Total number of commits that hit a concurrent remote change",
		},
	)
)

// RecordBackendOperation records one upload/download/delete against a backend.
func RecordBackendOperation(backend, operation string, duration time.Duration, success bool) {
	backendOperationsTotal.WithLabelValues(backend, operation, strconv.FormatBool(success)).Inc()
	backendOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordCommitConflict records a commit that had to reconcile against a
// newer remote index.
func RecordCommitConflict() {
	commitConflictsTotal.Inc()
}
