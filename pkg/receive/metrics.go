package receive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_events_admitted_total",
		Help: "Events admitted and durably recorded.",
	})
	replayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_events_replayed_total",
		Help: "Benign replays of already-admitted events.",
	})
	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sync_idempotency_conflicts_total",
		Help: "Idempotency keys reused with different content. A producer bug class.",
	})
	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guest_sync_events_rejected_total",
		Help: "Rejected deliveries by reason.",
	}, []string{"reason"})
)
