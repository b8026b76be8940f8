package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_webhooks_delivered_total",
		Help: "Webhook deliveries acknowledged by the consumer.",
	})
	failedAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_webhook_attempts_failed_total",
		Help: "Individual delivery attempts that failed.",
	})
	deadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_webhooks_dead_lettered_total",
		Help: "Events handed to the dead-letter queue.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_webhooks_dropped_total",
		Help: "Events diverted to the dead-letter queue because the worker pool was saturated.",
	})
	shortCircuitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_webhooks_short_circuited_total",
		Help: "Attempts skipped because the circuit breaker was open.",
	})
)
