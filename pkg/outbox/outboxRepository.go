package outbox

import (
	"context"
)

// Repository defines the database operations for outbox rows.
type Repository interface {
	// FetchPending claims a batch of deliverable rows (pending, or processing
	// rows whose claim expired) and marks them processing.
	FetchPending(ctx context.Context, batchSize int) ([]Event, error)
	// MarkProcessed marks a row as sent so it is never delivered again.
	MarkProcessed(ctx context.Context, eventID string) error
	// SetStatus sets the status of a row.
	SetStatus(ctx context.Context, eventID string, status Status) error
	// SetStatusAndIncrementRetry sets the status of a row and increments its
	// retry count.
	SetStatusAndIncrementRetry(ctx context.Context, eventID string, status Status) error
	// Close releases the underlying connections.
	Close() error
}
