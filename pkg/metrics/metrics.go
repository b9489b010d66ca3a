// Package metrics declares the prometheus instrumentation surface for one
// rollover/scale-down run: a CounterVec/HistogramVec set
// registered against a plain prometheus.Registerer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every metric name exported by this package.
const Namespace = "fleetroll"

var (
	// HostsProcessedTotal counts hosts the pipeline finished without
	// aborting the run, by mode and outcome (completed,
	// completed_with_warnings, or skipped_shutdown).
	HostsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "hosts_processed_total",
			Help:      "Total number of hosts that finished the rollover pipeline",
		},
		[]string{"mode", "outcome"},
	)

	// HostsSkippedTotal counts hosts whose container shutdown was
	// skipped after a failed preflight.
	HostsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "hosts_skipped_total",
			Help:      "Total number of hosts skipped after a container-stop preflight failure",
		},
		[]string{"mode"},
	)

	// RunAbortedTotal counts runs stopped early by a cluster-health-risk
	// failure.
	RunAbortedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "run_aborted_total",
			Help:      "Total number of runs aborted before completing the removal plan",
		},
		[]string{"mode", "reason"},
	)

	// HostDuration tracks wall-clock time spent per host across the
	// whole state machine.
	HostDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "host_duration_seconds",
			Help:      "Time spent processing one host through the rollover pipeline",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		},
		[]string{"mode"},
	)

	// SteadyStateWaitDuration tracks time spent polling for a service to
	// reach steady state.
	SteadyStateWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "steady_state_wait_duration_seconds",
			Help:      "Time spent waiting for a service to reach steady state",
			Buckets:   prometheus.LinearBuckets(10, 30, 20), // 10s to 580s in 30s steps
		},
		[]string{"timed_out"},
	)

	// ReplacementWaitDuration tracks time spent waiting for an ASG
	// replacement to become an active scheduler host.
	ReplacementWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "replacement_wait_duration_seconds",
			Help:      "Time spent waiting for a replacement host to become active",
			Buckets:   prometheus.LinearBuckets(10, 30, 10), // 10s to 280s in 30s steps
		},
		[]string{},
	)

	// CloudAPIRequests counts calls through a Cloud Adapter, by
	// adapter/operation and outcome.
	CloudAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cloud_api_requests_total",
			Help:      "Total number of cloud adapter calls",
		},
		[]string{"adapter", "operation", "status"},
	)

	// CircuitBreakerTransitionsTotal counts circuit breaker state
	// transitions, by adapter and resulting state.
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"adapter", "state"},
	)

	// AuditEventsTotal counts audit events emitted, by type and severity.
	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_events_total",
			Help:      "Total number of audit events logged",
		},
		[]string{"event_type", "severity"},
	)
)

// Register registers every metric in this package with reg. Production
// code passes prometheus.DefaultRegisterer; tests pass a scratch registry
// so runs don't collide on repeated registration.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HostsProcessedTotal,
		HostsSkippedTotal,
		RunAbortedTotal,
		HostDuration,
		SteadyStateWaitDuration,
		ReplacementWaitDuration,
		CloudAPIRequests,
		CircuitBreakerTransitionsTotal,
		AuditEventsTotal,
	)
}
