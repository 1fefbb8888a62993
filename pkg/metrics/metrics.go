// Package metrics provides Prometheus metrics for device operations, tasks and config backups.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics
var (
	// DeviceOperations counts per-host device operations by outcome
	DeviceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_device_operations_total",
		Help: "The total number of per-device operations performed",
	}, []string{"operation", "status"})

	// DeviceOperationDuration measures time spent on a single host
	DeviceOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netguard_device_operation_duration_seconds",
		Help:    "Time taken to run an operation against one device",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// TasksFinished counts tasks that reached a terminal state
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_tasks_total",
		Help: "The total number of tasks finished, by type and status",
	}, []string{"type", "status"})

	// TaskDuration measures task execution time
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netguard_task_duration_seconds",
		Help:    "Time taken to execute a task",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"type"})

	// TaskQueueDepth tracks tasks waiting for a worker
	TaskQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netguard_task_queue_depth",
		Help: "Number of tasks queued for execution",
	})

	// SnapshotCount tracks collected configuration snapshots
	SnapshotCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_config_snapshots_total",
		Help: "The total number of configuration snapshots collected",
	}, []string{"status"})

	// SnapshotSize tracks the size of the latest snapshot per device
	SnapshotSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netguard_config_snapshot_size_bytes",
		Help: "Size of the latest configuration snapshot in bytes",
	}, []string{"device"})

	// LastSnapshotTimestamp records the last successful snapshot per device
	LastSnapshotTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netguard_config_snapshot_last_timestamp",
		Help: "Timestamp of the last successful configuration snapshot",
	}, []string{"device"})

	// BackupRuns counts schedule runs by outcome
	BackupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_backup_runs_total",
		Help: "The total number of scheduled backup runs",
	}, []string{"status"})

	// ArchiveUploads counts snapshot archive writes
	ArchiveUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_archive_uploads_total",
		Help: "The total number of snapshot archive writes",
	}, []string{"storage", "status"})

	// ArchiveUploadDuration measures time taken to archive a snapshot
	ArchiveUploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netguard_archive_upload_duration_seconds",
		Help:    "Time taken to archive a snapshot",
		Buckets: prometheus.DefBuckets,
	}, []string{"storage"})

	// RetentionDeletes counts snapshots removed by retention
	RetentionDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_snapshot_deletions_total",
		Help: "The total number of snapshots deleted by retention policy",
	}, []string{"storage"})

	// SNMPProbes counts SNMP test probes
	SNMPProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_snmp_probes_total",
		Help: "The total number of SNMP probes performed",
	}, []string{"status"})

	// HTTPRequests counts admin API requests by method and status code
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netguard_http_requests_total",
		Help: "The total number of HTTP requests served",
	}, []string{"method", "code"})
)

// ObserveDeviceOperation records one host outcome
func ObserveDeviceOperation(operation string, failed bool, started time.Time) {
	status := "success"
	if failed {
		status = "failed"
	}
	DeviceOperations.WithLabelValues(operation, status).Inc()
	DeviceOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
