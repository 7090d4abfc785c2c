package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HoldsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_created_total",
		Help: "Holds successfully created.",
	})

	HoldsTerminatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holds_terminated_total",
			Help: "Holds moved to a terminal state, by outcome.",
		},
		[]string{"outcome"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook deliveries, by result.",
		},
		[]string{"result"},
	)

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published to the broker.",
	})

	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed.",
	})

	ConsumerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_retries_total",
		Help: "Messages rescheduled for a delayed retry.",
	})

	ConsumerDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_dead_lettered_total",
			Help: "Messages published to the dead-letter topic, by reason.",
		},
		[]string{"reason"},
	)

	SearchSyncFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "search_sync_failures_total",
		Help: "Snapshot documents that exhausted the search index retry budget.",
	})
)
