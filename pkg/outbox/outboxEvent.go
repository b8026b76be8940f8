package outbox

import (
	"encoding/json"
	"time"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

// Status represents the delivery status of an outbox row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Event is one row of the producer-side outbox table. Rows are written in the
// same transaction as the domain change they describe, which is what makes
// delivery at-least-once: an event exists durably before anyone tries to send
// it.
type Event struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	RetryCount     int             `json:"retry_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	SentAt         time.Time       `json:"sent_at,omitempty"`
}

// Envelope builds the wire envelope for the row. The idempotency key and
// timestamp come from the stored row, never regenerated, so every delivery
// attempt of the same row is byte-identical for the consumer's deduplication.
func (e *Event) Envelope() *event.Event {
	return &event.Event{
		Type:           event.Type(e.Type),
		IdempotencyKey: e.IdempotencyKey,
		Timestamp:      e.CreatedAt.UnixMilli(),
		Payload:        e.Payload,
	}
}
