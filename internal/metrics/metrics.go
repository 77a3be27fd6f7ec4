// Package metrics provides Prometheus metrics for the backup agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations tracks public agent operations.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_agent_operations_total",
		Help: "Total number of agent operations",
	}, []string{"operation", "status"})

	// OperationDuration tracks the duration of agent operations.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backup_agent_operation_duration_seconds",
		Help:    "Duration of agent operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"operation"})

	// CacheEvents tracks hits, misses and invalidations per cache.
	CacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_agent_cache_events_total",
		Help: "Total number of cache events",
	}, []string{"cache", "event"})

	// Backups tracks the number of backups seen by the last listing.
	Backups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backup_agent_backups",
		Help: "Number of backups found by the most recent listing",
	})

	// UploadBytes tracks the size of the last uploaded archive.
	UploadBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backup_agent_upload_size_bytes",
		Help: "Size of the last uploaded backup archive in bytes",
	})

	// LastUploadTimestamp tracks when the last successful upload finished.
	LastUploadTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backup_agent_last_upload_timestamp",
		Help: "Unix timestamp of the last successful upload",
	})

	// Info provides static information about the agent.
	Info = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backup_agent_info",
		Help: "Information about the backup agent",
	}, []string{"version", "storage_provider"})
)

// RecordOperation records an agent operation with its status.
func RecordOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	Operations.WithLabelValues(operation, status).Inc()
}

// RecordCacheEvent records a hit, miss or invalidation on a cache.
func RecordCacheEvent(cache, event string) {
	CacheEvents.WithLabelValues(cache, event).Inc()
}
