// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the relay orchestrator, gateway and agents.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LLMBuckets defines histogram buckets suited for LLM and agent latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// QueryBuckets covers whole plan executions, which chain several agent calls.
var QueryBuckets = []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: QueryBuckets,
		},
		[]string{"method", "route"},
	)

	// InflightRequests tracks HTTP requests currently being served.
	InflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_inflight_requests",
			Help: "HTTP requests in flight",
		},
	)

	// QueriesTotal counts finished queries by final request status.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_queries_total",
			Help: "Finished queries",
		},
		[]string{"status"},
	)

	// QueryDuration records the time from request creation to finalization.
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_query_duration_seconds",
			Help:    "Query duration",
			Buckets: QueryBuckets,
		},
		[]string{"status"},
	)

	// StepsTotal counts executed plan steps by agent and step status.
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_steps_total",
			Help: "Executed plan steps",
		},
		[]string{"agent", "status"},
	)

	// AgentLatency records agent call latency in seconds.
	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_agent_latency_seconds",
			Help:    "Agent call latency",
			Buckets: LLMBuckets,
		},
		[]string{"agent"},
	)

	// PlannerFailuresTotal counts queries whose plan could not be produced.
	PlannerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_planner_failures_total",
			Help: "Planner failures",
		},
	)

	// SynthesisFailuresTotal counts queries whose final answer could not be produced.
	SynthesisFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_synthesis_failures_total",
			Help: "Synthesis failures",
		},
	)

	// StoreErrorsTotal counts trace store write failures by operation.
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_store_errors_total",
			Help: "Trace store errors",
		},
		[]string{"operation"},
	)

	// ProviderRequestsTotal counts requests sent to backend LLM providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// CapabilityInvocationsTotal counts agent capability calls by name and outcome.
	CapabilityInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_capability_invocations_total",
			Help: "Capability invocations",
		},
		[]string{"capability", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InflightRequests,
		QueriesTotal,
		QueryDuration,
		StepsTotal,
		AgentLatency,
		PlannerFailuresTotal,
		SynthesisFailuresTotal,
		StoreErrorsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		CapabilityInvocationsTotal,
	)
}

// RecordStep records one executed step. latency is nil when no agent call
// was made.
func RecordStep(agent, status string, latency *time.Duration) {
	StepsTotal.WithLabelValues(agent, status).Inc()
	if latency != nil {
		AgentLatency.WithLabelValues(agent).Observe(latency.Seconds())
	}
}

// RecordQuery records one finalized query.
func RecordQuery(status string, d time.Duration) {
	QueriesTotal.WithLabelValues(status).Inc()
	QueryDuration.WithLabelValues(status).Observe(d.Seconds())
}
