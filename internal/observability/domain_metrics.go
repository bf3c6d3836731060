package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Chat outcomes used as the outcome label.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid_request"
	OutcomeRejected      = "rejected"
	OutcomeModelError    = "model_error"
	OutcomeSchemaMissing = "schema_missing"
	OutcomeSyntaxError   = "syntax_error"
	OutcomeDatabaseError = "database_error"
	OutcomeNotConfigured = "not_configured"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_chat_requests_total",
			Help: "Total number of chat requests by outcome.",
		},
		[]string{"outcome"},
	)
	safetyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_safety_rejections_total",
			Help: "Generated statements rejected by the safety filter, by rule.",
		},
		[]string{"policy", "rule"},
	)
	modelLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_model_latency_seconds",
			Help:    "Latency of SQL generation calls to the language model.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"provider", "status"},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_query_latency_ms",
			Help:    "Execution latency of generated statements in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_query_result_rows",
			Help:    "Number of rows returned by generated statements.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		safetyRejectionsTotal,
		modelLatencySeconds,
		queryLatencyMs,
		queryRows,
	)
}

func ObserveChatOutcome(outcome string) {
	chatRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveSafetyRejection(policy, rule string) {
	safetyRejectionsTotal.WithLabelValues(policy, rule).Inc()
}

func ObserveModelCall(provider string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	modelLatencySeconds.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

func ObserveQuery(rows int, elapsed time.Duration) {
	if rows < 0 {
		rows = 0
	}
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
	queryRows.Observe(float64(rows))
}
