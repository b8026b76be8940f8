package dlq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var parkedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "guest_sync_dead_letter_parked_total",
	Help: "Dead-letter items parked after exceeding the recirculation cap.",
})
