package store

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

func addDBStatsToSpan(span trace.Span, system, statement string, duration time.Duration) {
	span.SetAttributes(
		attribute.String("db.system", system),
		attribute.String("db.statement", statement),
		attribute.Float64("db.execution_time_ms", float64(duration.Milliseconds())),
	)
}

// nightsBetween returns the stay length in whole days, never negative. An
// unparseable date counts as zero nights; the aggregation tolerates
// producer-side garbage rather than failing the admit.
func nightsBetween(checkIn, checkOut string) int {
	ci, err := time.Parse("2006-01-02", checkIn)
	if err != nil {
		return 0
	}
	co, err := time.Parse("2006-01-02", checkOut)
	if err != nil {
		return 0
	}
	nights := int(co.Sub(ci).Hours() / 24)
	if nights < 0 {
		return 0
	}
	return nights
}

func reservationSnapshot(p *event.ReservationPayload) ReservationSnapshot {
	return ReservationSnapshot{
		RoomNumber: p.RoomNumber,
		CheckIn:    p.CheckIn,
		CheckOut:   p.CheckOut,
		Status:     p.Status,
	}
}
