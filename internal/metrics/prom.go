// Package metrics exposes the bridge's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "mcpbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "bridge"},
		},
		[]string{"date", "sha", "version"},
	)

	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpbridge_calls_total",
			Help: "JSON-RPC calls issued to the child server",
		},
		[]string{"method", "outcome"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpbridge_call_duration_seconds",
			Help:    "JSON-RPC call round-trip duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpbridge_connects_total",
			Help: "Session connect attempts",
		},
		[]string{"outcome"},
	)

	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpbridge_session_state",
			Help: "Session state (0=disconnected, 1=connecting, 2=ready, 3=closed)",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, callsTotal, callDuration, connectsTotal, sessionState)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordCall counts one call and its duration.
func RecordCall(method, outcome string, d time.Duration) {
	callsTotal.WithLabelValues(method, outcome).Inc()
	callDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordConnect counts one connect attempt.
func RecordConnect(outcome string) {
	connectsTotal.WithLabelValues(outcome).Inc()
}

// SetSessionState publishes the current session state.
func SetSessionState(state int) {
	sessionState.Set(float64(state))
}
