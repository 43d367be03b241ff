// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsStarted counts accepted trigger requests by job type.
	JobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_started_total",
			Help: "Total number of batch jobs accepted for execution",
		},
		[]string{"job_type"},
	)

	// JobsCompleted counts finalized ledger rows by job type and terminal status.
	JobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_completed_total",
			Help: "Total number of batch jobs completed, by terminal status",
		},
		[]string{"job_type", "status"},
	)

	// JobDuration observes wall-clock job duration.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_jobs_duration_seconds",
			Help:    "Batch job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"job_type"},
	)

	// EmailsSent counts per-recipient send outcomes.
	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_emails_total",
			Help: "Total per-recipient email outcomes",
		},
		[]string{"status"},
	)

	// StripeCalls counts outbound Stripe API calls.
	StripeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_stripe_calls_total",
			Help: "Total Stripe API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// RateLimitDenied counts non-blocking token acquisitions that were refused.
	RateLimitDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_rate_limit_denied_total",
			Help: "Total rate limiter acquisitions denied, by provider",
		},
		[]string{"provider"},
	)

	// CircuitState reports breaker state per provider (0=closed, 1=half-open, 2=open).
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_jobs_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsStarted,
		JobsCompleted,
		JobDuration,
		EmailsSent,
		StripeCalls,
		RateLimitDenied,
		CircuitState,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
