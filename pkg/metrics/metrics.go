package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler metrics
	TasksQueued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabric_tasks_queued",
			Help: "Number of tasks currently queued, by priority",
		},
		[]string{"priority"},
	)

	TasksScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabric_tasks_scheduled_total",
			Help: "Total number of tasks dequeued and submitted to the worker pool",
		},
	)

	TasksRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabric_tasks_retried_total",
			Help: "Total number of retriable task failures re-enqueued",
		},
	)

	TasksTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabric_tasks_terminal_total",
			Help: "Total number of tasks reaching a terminal status, by status",
		},
		[]string{"status"},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabric_scheduling_latency_seconds",
			Help:    "Time from admission to dispatch to the worker pool",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker pool metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabric_workers_total",
			Help: "Number of workers by status",
		},
		[]string{"status"},
	)

	WorkerPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabric_worker_panics_total",
			Help: "Total number of worker goroutine panics recovered",
		},
	)

	WorkerStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabric_worker_stalls_total",
			Help: "Total number of workers pruned for exceeding the stall timeout",
		},
	)

	// Sandbox metrics
	SandboxesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabric_sandboxes_active",
			Help: "Number of sandboxes by status",
		},
		[]string{"status"},
	)

	SandboxCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabric_sandbox_create_duration_seconds",
			Help:    "Time taken to create a sandbox",
			Buckets: prometheus.DefBuckets,
		},
	)

	SandboxDestroyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabric_sandbox_destroy_duration_seconds",
			Help:    "Time taken to destroy a sandbox",
			Buckets: prometheus.DefBuckets,
		},
	)

	SandboxCreationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabric_sandbox_creation_failures_total",
			Help: "Total number of sandbox creation failures, by step",
		},
		[]string{"step"},
	)

	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabric_execution_duration_seconds",
			Help:    "Wall-clock time of one sandbox execution",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Resource enforcement metrics
	ResourceViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabric_resource_violations_total",
			Help: "Total number of resource limit violations, by resource type",
		},
		[]string{"resource"},
	)

	SecurityViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabric_security_violations_total",
			Help: "Total number of security policy violations, by severity",
		},
		[]string{"severity"},
	)

	// Result store metrics
	ResultsStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabric_results_stored_total",
			Help: "Total number of execution results durably stored",
		},
	)

	DroppedMetricsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabric_dropped_metrics_total",
			Help: "Total number of metric/log sink writes dropped due to buffer overflow",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksQueued,
		TasksScheduledTotal,
		TasksRetriedTotal,
		TasksTerminalTotal,
		SchedulingLatency,
		WorkersTotal,
		WorkerPanicsTotal,
		WorkerStallsTotal,
		SandboxesActive,
		SandboxCreateDuration,
		SandboxDestroyDuration,
		SandboxCreationFailuresTotal,
		ExecutionDuration,
		ResourceViolationsTotal,
		SecurityViolationsTotal,
		ResultsStoredTotal,
		DroppedMetricsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
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

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
