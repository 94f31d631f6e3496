package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginhost_workers_active",
			Help: "Number of currently spawned worker processes",
		},
	)

	WorkersIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginhost_workers_idle",
			Help: "Number of idle workers in the pool",
		},
	)

	PluginsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginhost_plugins_loaded",
			Help: "Number of plugins currently loaded and active",
		},
	)

	WorkerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_worker_restarts_total",
			Help: "Total number of worker restarts by plugin",
		},
		[]string{"plugin"},
	)

	WorkerRestartsExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_worker_restarts_exhausted_total",
			Help: "Total number of times a plugin's restart budget was exhausted",
		},
		[]string{"plugin"},
	)

	WorkerCrashesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_worker_crashes_total",
			Help: "Total number of worker crashes by plugin",
		},
		[]string{"plugin"},
	)

	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_rpc_requests_total",
			Help: "Total number of host<->worker RPC dispatches by message type and outcome",
		},
		[]string{"type", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pluginhost_rpc_request_duration_seconds",
			Help:    "Host<->worker RPC round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_tool_invocations_total",
			Help: "Total number of tool invocations by plugin and outcome",
		},
		[]string{"plugin", "tool", "outcome"},
	)

	ToolInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pluginhost_tool_invocation_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"plugin", "tool"},
	)

	AuditLogRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_audit_log_rotations_total",
			Help: "Total number of audit log file rotations by plugin",
		},
		[]string{"plugin"},
	)

	SecureStoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginhost_secure_store_operations_total",
			Help: "Total number of secure store operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(WorkersIdle)
	prometheus.MustRegister(PluginsLoaded)
	prometheus.MustRegister(WorkerRestartsTotal)
	prometheus.MustRegister(WorkerRestartsExhaustedTotal)
	prometheus.MustRegister(WorkerCrashesTotal)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(ToolInvocationsTotal)
	prometheus.MustRegister(ToolInvocationDuration)
	prometheus.MustRegister(AuditLogRotationsTotal)
	prometheus.MustRegister(SecureStoreOperationsTotal)
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
