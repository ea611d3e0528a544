// Package metrics provides Prometheus metrics for the drive server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pidrive_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pidrive_sessions_active",
			Help: "Remote sessions currently held open",
		},
	)

	sessionsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pidrive_sessions_opened_total",
			Help: "Total remote sessions established",
		},
	)

	transferJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pidrive_transfer_jobs_total",
			Help: "Total transfer jobs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	transferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pidrive_transfer_bytes_total",
			Help: "Total payload bytes moved",
		},
		[]string{"direction"},
	)

	quotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pidrive_quota_rejections_total",
			Help: "Uploads refused by the quota gate",
		},
	)
)

// RecordAuthAttempt counts a login attempt; result is "ok" or "rejected".
func RecordAuthAttempt(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SetSessionsActive tracks the live session count.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// RecordSessionOpened counts a freshly dialed session.
func RecordSessionOpened() {
	sessionsOpenedTotal.Inc()
}

// RecordTransferJob counts a finished job; status is "completed" or "failed".
func RecordTransferJob(kind, status string) {
	transferJobsTotal.WithLabelValues(kind, status).Inc()
}

// AddTransferBytes accumulates moved bytes; direction is "upload" or
// "download".
func AddTransferBytes(direction string, n int64) {
	if n > 0 {
		transferBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordQuotaRejection counts an upload stopped by the quota gate.
func RecordQuotaRejection() {
	quotaRejectionsTotal.Inc()
}
