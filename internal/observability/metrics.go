package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for generation and execution metrics.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeNoStatement = "no_statement"
	OutcomeRefused     = "refused"
	OutcomeEmpty       = "empty"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_generations_total",
			Help: "Total number of SQL generation requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	generationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_generation_duration_seconds",
			Help:    "LLM round-trip latency for SQL generation.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider"},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_executions_total",
			Help: "Total number of statement executions by policy and outcome.",
		},
		[]string{"policy", "outcome"},
	)

	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlassist_execution_duration_seconds",
			Help:    "Statement execution latency including connection setup.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		generationsTotal,
		generationDurationSeconds,
		executionsTotal,
		executionDurationSeconds,
	)
}

// ObserveGeneration records one generate action.
func ObserveGeneration(provider, outcome string, took time.Duration) {
	generationsTotal.WithLabelValues(provider, outcome).Inc()
	generationDurationSeconds.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveExecution records one execute action.
func ObserveExecution(policy, outcome string, took time.Duration) {
	executionsTotal.WithLabelValues(policy, outcome).Inc()
	executionDurationSeconds.WithLabelValues(policy).Observe(took.Seconds())
}
