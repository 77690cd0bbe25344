// Package observability provides Prometheus metrics for the hook dispatch
// layer and the demo host.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ProxyBuckets suits upstream round-trip latencies, from 5ms to 30s.
var ProxyBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	// HookInvocationsTotal counts hook callback invocations by stage and
	// terminal outcome.
	HookInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshim_hook_invocations_total",
			Help: "Hook invocations",
		},
		[]string{"stage", "outcome"},
	)

	// HookViolationsTotal counts hook protocol violations: unconsumed
	// completion tokens, duplicate terminal operations, and panics.
	HookViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshim_hook_protocol_violations_total",
			Help: "Hook protocol violations",
		},
		[]string{"stage", "kind"},
	)

	// UpstreamRequestsTotal counts origin round trips by method and status
	// class.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshim_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"method", "status"},
	)

	// UpstreamLatency records origin round-trip duration in seconds.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgeshim_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: ProxyBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		HookInvocationsTotal,
		HookViolationsTotal,
		UpstreamRequestsTotal,
		UpstreamLatency,
	)
}
