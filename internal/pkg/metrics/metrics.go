// Package metrics provides Prometheus metrics for conduit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsClaimedTotal counts successful claims; lost races are not counted.
	JobsClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "jobs_claimed_total",
			Help:      "Total number of jobs claimed by workers",
		},
		[]string{"job_type"},
	)

	// JobsProcessedTotal tracks handler outcomes: succeeded, retried or dead.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed by outcome",
		},
		[]string{"job_type", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Duration of job handlers in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"job_type"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// JobsByStatus is refreshed periodically from the store.
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "conduit",
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "Number of jobs in the store by status",
		},
		[]string{"status"},
	)

	// WebhooksIngestedTotal tracks inbound events; result is new or duplicate.
	WebhooksIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "webhooks",
			Name:      "ingested_total",
			Help:      "Total number of webhook deliveries by result",
		},
		[]string{"provider", "result"},
	)

	WebhookSignatureFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "webhooks",
			Name:      "signature_failures_total",
			Help:      "Total number of webhook deliveries rejected for a bad signature",
		},
		[]string{"provider"},
	)

	// TokenRequestsTotal tracks OAuth token endpoint calls by grant and status.
	TokenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "oauth",
			Name:      "token_requests_total",
			Help:      "Total number of OAuth token requests",
		},
		[]string{"provider", "grant", "status"},
	)

	// HTTPRequestsTotal tracks inbound API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// AuthRejectionsTotal counts bearer tokens turned away, by reason.
	AuthRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conduit",
			Subsystem: "http",
			Name:      "auth_rejections_total",
			Help:      "Total number of requests rejected by bearer authentication",
		},
		[]string{"reason"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conduit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)
