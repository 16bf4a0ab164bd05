package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_sync_runs_total",
			Help: "Sync runs that reached a terminal status",
		},
		[]string{"sync_type", "status"},
	)

	SyncPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adpulse_sync_phase_duration_seconds",
			Help:    "Time spent in each sync phase",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"phase"},
	)

	SyncRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_sync_retries_total",
			Help: "Retried ads API calls during sync, by error class",
		},
		[]string{"error"},
	)

	MetaAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_meta_api_requests_total",
			Help: "Requests sent to the Graph API, by outcome",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adpulse_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	TagWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_tag_writes_total",
			Help: "Creative tag writes by resulting tag source",
		},
		[]string{"source"},
	)

	MediaItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_media_items_total",
			Help: "Media items processed by the cache worker",
		},
		[]string{"kind", "outcome"},
	)

	ReapedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adpulse_reaped_jobs_total",
			Help: "Stalled jobs marked failed by the reaper",
		},
		[]string{"kind"},
	)

	PromotedSyncs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adpulse_promoted_syncs_total",
			Help: "Queued syncs promoted to running",
		},
	)
)
