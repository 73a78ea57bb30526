package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksTotal is the number of tasks currently in each state, across
	// every pipeline in the workflow.
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entk_tasks_total",
			Help: "Number of tasks currently in each state",
		},
		[]string{"state"},
	)

	StagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entk_stages_total",
			Help: "Number of stages currently in each state",
		},
		[]string{"state"},
	)

	PipelinesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "entk_pipelines_total",
			Help: "Number of pipelines currently in each state",
		},
		[]string{"state"},
	)

	// TaskStateDuration is a histogram of how long a task spent between
	// entering one state and the next, keyed by the state it just left.
	// It is registered, but no code path in the engine observes it.
	TaskStateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entk_task_state_duration_seconds",
			Help:    "Time a task spent in a state before transitioning out of it",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	TaskSubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entk_task_submit_duration_seconds",
			Help:    "Time taken for TaskManager to submit a task to the RTS",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entk_tasks_submitted_total",
			Help: "Total number of tasks submitted to the RTS",
		},
	)

	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entk_tasks_failed_total",
			Help: "Total number of tasks that ended in FAILED, by pipeline",
		},
		[]string{"pipeline_uid"},
	)

	TasksResubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entk_tasks_resubmitted_total",
			Help: "Total number of tasks resubmitted under a Resubmit failure policy",
		},
	)

	// SyncMessagesTotal counts sync-to-master proposals by entity kind and
	// outcome (acked, error).
	SyncMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entk_sync_messages_total",
			Help: "Total number of sync-to-master proposals by entity kind and outcome",
		},
		[]string{"kind", "result"},
	)

	SyncAckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entk_sync_ack_duration_seconds",
			Help:    "Time between publishing a sync proposal and receiving its ack",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HeartbeatsMissedTotal counts heartbeat rounds where a component
	// failed to answer before the configured heartbeat timeout elapsed.
	HeartbeatsMissedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entk_heartbeats_missed_total",
			Help: "Total number of missed heartbeat responses by component",
		},
		[]string{"component"},
	)

	HeartbeatLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entk_heartbeat_latency_seconds",
			Help:    "Round-trip time of a heartbeat request/response exchange",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	WorkerRespawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entk_worker_respawns_total",
			Help: "Total number of times AppManager respawned a dead WorkflowProcessor or TaskManager",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		StagesTotal,
		PipelinesTotal,
		TaskStateDuration,
		TaskSubmitDuration,
		TasksSubmittedTotal,
		TasksFailedTotal,
		TasksResubmittedTotal,
		SyncMessagesTotal,
		SyncAckDuration,
		HeartbeatsMissedTotal,
		HeartbeatLatency,
		WorkerRespawnsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
