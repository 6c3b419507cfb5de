package utils

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "app_request_duration_seconds",
			Help: "Request duration seconds",
		},
		[]string{"method", "path"},
	)

	ErrorCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_errors_total",
			Help: "Total app errors",
		},
		[]string{"handler", "type"},
	)

	// LedgerUpdates counts behavioral ledger updater runs per updater and
	// outcome (applied, skipped, failed).
	LedgerUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_ledger_updates_total",
			Help: "Behavioral ledger updater runs",
		},
		[]string{"updater", "outcome"},
	)

	// CacheFallbacks counts habit sync operations that degraded to the
	// local cache tier because the durable store errored.
	CacheFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_cache_fallbacks_total",
			Help: "Habit sync operations served by the cache tier",
		},
		[]string{"operation"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(ReqCount, ReqDuration, ErrorCount, LedgerUpdates, CacheFallbacks)
}
