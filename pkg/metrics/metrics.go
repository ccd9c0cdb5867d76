package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Quotes

	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_zap_quote_requests_total",
			Help: "Total number of quote requests by solver and result",
		},
		[]string{"solver", "result"},
	)

	StaleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_zap_stale_responses_total",
			Help: "Total number of quote or allowance responses dropped because a newer request was issued",
		},
		[]string{"solver"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_zap_quote_duration_seconds",
			Help:    "Quote fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"solver"},
	)

	// Transactions

	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_zap_transactions_total",
			Help: "Total number of approve, deposit and withdraw operations by outcome",
		},
		[]string{"solver", "operation", "status"},
	)

	PermitsSigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_zap_permits_signed_total",
			Help: "Total number of permit signatures used instead of approvals",
		},
		[]string{"solver"},
	)

	// Notifications

	NotificationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_zap_notification_transitions_total",
			Help: "Total number of notification status changes",
		},
		[]string{"type", "status"},
	)

	ActivePollers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vault_zap_active_pollers",
		Help: "Number of notifications currently being polled",
	})

	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_zap_poll_errors_total",
			Help: "Total number of failed status polls",
		},
		[]string{"type"},
	)
)
