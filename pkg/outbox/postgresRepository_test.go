package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresRepository{db: db, tracer: otel.Tracer("guest-sync")}, mock
}

func TestFetchPendingClaimsBatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	created := time.Now().Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"id", "type", "idempotency_key", "payload", "retry_count", "created_at"}).
		AddRow("1", "guest.created", "key-aaaa-0001", []byte(`{"id":1}`), 0, created).
		AddRow("2", "reservation.created", "key-aaaa-0002", []byte(`{"id":2}`), 2, created)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, type, idempotency_key, payload, retry_count, created_at FROM outbox`).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE outbox SET status='processing', updated_at=\$1 WHERE id = ANY\(\$2\)`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	events, err := repo.FetchPending(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "guest.created", events[0].Type)
	assert.Equal(t, "key-aaaa-0001", events[0].IdempotencyKey)
	assert.Equal(t, 0, events[0].RetryCount)
	assert.Equal(t, 2, events[1].RetryCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE outbox SET status='sent', sent_at=\$1, updated_at=\$1 WHERE id=\$2`).
		WithArgs(sqlmock.AnyArg(), "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkProcessed(context.Background(), "1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE outbox SET status=\$1, updated_at=\$2 WHERE id=\$3`).
		WithArgs(StatusFailed, sqlmock.AnyArg(), "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatus(context.Background(), "1", StatusFailed)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusAndIncrementRetry(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE outbox SET status=\$1, retry_count = retry_count \+ 1, updated_at=\$2 WHERE id=\$3`).
		WithArgs(StatusPending, sqlmock.AnyArg(), "1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatusAndIncrementRetry(context.Background(), "1", StatusPending)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnvelopePreservesIdentity(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := Event{
		ID:             "1",
		Type:           "guest.updated",
		IdempotencyKey: "key-aaaa-0003",
		Payload:        []byte(`{"id":7,"email":"ada@example.com"}`),
		CreatedAt:      created,
	}

	env := row.Envelope()
	assert.Equal(t, "guest.updated", string(env.Type))
	assert.Equal(t, "key-aaaa-0003", env.IdempotencyKey)
	assert.Equal(t, created.UnixMilli(), env.Timestamp)

	// A second build must be identical: redelivery reuses the stored identity.
	assert.Equal(t, env, row.Envelope())
}
