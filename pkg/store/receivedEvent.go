package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

// ErrDuplicateEvent reports that an event with the same idempotency key is
// already recorded. The store's uniqueness constraint raises it inside the
// admit transaction; it is the authoritative duplicate signal, not any
// earlier lookup.
var ErrDuplicateEvent = errors.New("event with idempotency key already recorded")

// ReceivedEvent is the durable audit record of one admitted webhook. Rows
// are written exactly once and never updated or deleted.
type ReceivedEvent struct {
	Type           string          `json:"type" bson:"type"`
	IdempotencyKey string          `json:"idempotency_key" bson:"idempotency_key"`
	Timestamp      int64           `json:"timestamp" bson:"timestamp"`
	Payload        json.RawMessage `json:"payload" bson:"payload"`
	Signature      string          `json:"signature" bson:"signature"`
	SourceIP       string          `json:"source_ip,omitempty" bson:"source_ip,omitempty"`
	ReceivedAt     time.Time       `json:"received_at" bson:"received_at"`
}

// ReservationSnapshot is the last-reservation aggregate kept on a guest
// profile.
type ReservationSnapshot struct {
	RoomNumber string `json:"room_number,omitempty" bson:"room_number,omitempty"`
	CheckIn    string `json:"check_in,omitempty" bson:"check_in,omitempty"`
	CheckOut   string `json:"check_out,omitempty" bson:"check_out,omitempty"`
	Status     string `json:"status,omitempty" bson:"status,omitempty"`
}

// EventStore persists received events and applies their domain projections.
// Each Admit method records the event and applies the projection as one
// atomic unit; a duplicate idempotency key aborts the whole unit with
// ErrDuplicateEvent.
type EventStore interface {
	// FindEvent returns the stored event for the key, or nil when absent.
	FindEvent(ctx context.Context, idempotencyKey string) (*ReceivedEvent, error)
	// AdmitGuest records the event and upserts the guest profile by email.
	AdmitGuest(ctx context.Context, rec *ReceivedEvent, p *event.GuestPayload) error
	// AdmitReservation records the event and folds the reservation into the
	// guest profile aggregates.
	AdmitReservation(ctx context.Context, rec *ReceivedEvent, p *event.ReservationPayload) error
	// AdmitRecordOnly records the event with no projection (deletions,
	// unknown types, reservations without a guest email).
	AdmitRecordOnly(ctx context.Context, rec *ReceivedEvent) error
	// Close releases the underlying connections.
	Close(ctx context.Context) error
}
