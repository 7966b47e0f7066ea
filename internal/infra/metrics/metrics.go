// Package metrics provides Prometheus metrics for apuctl: native call
// latency and failures, session lifecycle, and the latest telemetry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Native Calls ───────────────────────────────────────────────────────────

// NativeCallLatency tracks the time a native call held the device, by
// operation (get, set, refresh_table, ...).
var NativeCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "apuctl",
	Name:      "native_call_seconds",
	Help:      "Native driver call duration in seconds.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
}, []string{"op"})

// NativeCallErrors counts failed calls by operation and error kind.
var NativeCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "apuctl",
	Name:      "native_call_errors_total",
	Help:      "Failed driver calls by operation and error kind.",
}, []string{"op", "kind"})

// LockWait tracks time spent queued for the device lock.
var LockWait = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "apuctl",
	Name:      "device_lock_wait_seconds",
	Help:      "Time callers waited for the device session lock.",
	Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1},
})

// ─── Session ────────────────────────────────────────────────────────────────

// SessionState tracks the façade state (0=Uninitialized, 1=Acquired,
// 2=TableReady, 3=Closed).
var SessionState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "apuctl",
	Name:      "session_state",
	Help:      "Session state (0=Uninitialized, 1=Acquired, 2=TableReady, 3=Closed).",
})

// CPUFamily exposes the detected family number.
var CPUFamily = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "apuctl",
	Name:      "cpu_family",
	Help:      "Detected CPU family (native enumeration value).",
})

// ProfilesApplied counts profile applications by result.
var ProfilesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "apuctl",
	Name:      "profiles_applied_total",
	Help:      "Profile applications by result (ok, failed).",
}, []string{"result"})

// ─── Telemetry ──────────────────────────────────────────────────────────────

// Reading holds the most recent value of each sampled parameter.
var Reading = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "apuctl",
	Name:      "reading",
	Help:      "Latest parameter reading in its read unit.",
}, []string{"param", "unit"})

// TableRefreshes counts successful metrics table refreshes.
var TableRefreshes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "apuctl",
	Name:      "table_refreshes_total",
	Help:      "Successful power metrics table refreshes.",
})

// TableVersion exposes the metrics table version.
var TableVersion = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "apuctl",
	Name:      "table_version",
	Help:      "Power metrics table version.",
})

// TelemetrySpikes counts readings flagged as outliers.
var TelemetrySpikes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "apuctl",
	Name:      "telemetry_spikes_total",
	Help:      "Readings flagged as outliers against their own history.",
}, []string{"param"})

// PollerBreakerState tracks the device poll breaker (0=closed, 1=open, 2=half-open).
var PollerBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "apuctl",
	Name:      "poller_breaker_state",
	Help:      "Device poll circuit breaker state (0=closed, 1=open, 2=half-open).",
})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "apuctl",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
