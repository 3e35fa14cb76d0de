// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notification records created",
		},
		[]string{"category"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_suppressed_total",
			Help: "Events that passed through the decision engine without creating a record",
		},
		[]string{"reason"},
	)

	NotificationInsertFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_insert_failures_total",
			Help: "Total number of failed notification inserts",
		},
	)

	RepositoryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_repository_failures_total",
			Help: "Swallowed repository errors by operation",
		},
		[]string{"operation"},
	)

	RealtimeStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_subscription_status_total",
			Help: "Subscription status transitions by table and status",
		},
		[]string{"table", "status"},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_subscriptions",
			Help: "Number of open change feed subscriptions",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Fan-out deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	BroadcastResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_broadcast_results_total",
			Help: "Per-user broadcast results",
		},
		[]string{"kind", "result"},
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_decision_duration_seconds",
			Help:    "Duration of decision engine event handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_active_sessions",
			Help: "Number of live per-user sessions",
		},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
