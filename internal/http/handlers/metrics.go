package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tokensIssued      prometheus.Counter
	tokensRotated     prometheus.Counter
	tokensRevoked     prometheus.Counter
	teamsBootstrapped prometheus.Counter
	bootstrapErrors   prometheus.Counter
)

// InitPrometheusMetrics registers the control-plane counters. Call once at
// startup, before the routers start serving.
func InitPrometheusMetrics() {
	tokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hdxplane",
		Name:      "ingestion_tokens_issued_total",
		Help:      "Total ingestion tokens created.",
	})
	tokensRotated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hdxplane",
		Name:      "ingestion_tokens_rotated_total",
		Help:      "Total ingestion token rotations.",
	})
	tokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hdxplane",
		Name:      "ingestion_tokens_revoked_total",
		Help:      "Total ingestion tokens revoked.",
	})
	teamsBootstrapped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hdxplane",
		Name:      "teams_bootstrapped_total",
		Help:      "Total teams whose tenant storage bootstrap completed.",
	})
	bootstrapErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hdxplane",
		Name:      "bootstrap_errors_total",
		Help:      "Total tenant bootstrap attempts that failed (retriable).",
	})
	prometheus.MustRegister(tokensIssued, tokensRotated, tokensRevoked, teamsBootstrapped, bootstrapErrors)
}
