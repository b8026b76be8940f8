package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of domain change carried by an event.
type Type string

const (
	TypeGuestCreated       Type = "guest.created"
	TypeGuestUpdated       Type = "guest.updated"
	TypeGuestDeleted       Type = "guest.deleted"
	TypeReservationCreated Type = "reservation.created"
	TypeReservationUpdated Type = "reservation.updated"
	TypeReservationDeleted Type = "reservation.deleted"
)

// IsDeletion reports whether the type is a deletion event. Deletions are
// recorded for audit on the consumer side but carry no projection.
func (t Type) IsDeletion() bool {
	return t == TypeGuestDeleted || t == TypeReservationDeleted
}

// Event is the wire envelope for one logical domain change. The idempotency
// key is generated once per logical event and must never be regenerated on a
// retry; the consumer deduplicates on it.
type Event struct {
	Type           Type            `json:"type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Timestamp      int64           `json:"timestamp"` // milliseconds since epoch
	Payload        json.RawMessage `json:"payload"`
}

// NewEvent creates an Event for the given type and payload with a fresh
// idempotency key and the current timestamp.
func NewEvent(t Type, payload json.RawMessage) *Event {
	return &Event{
		Type:           t,
		IdempotencyKey: uuid.New().String(),
		Timestamp:      time.Now().UnixMilli(),
		Payload:        payload,
	}
}

// Encode returns the canonical JSON body for the envelope. The signature is
// computed over these exact bytes; callers must transmit them unmodified.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
