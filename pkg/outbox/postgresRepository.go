package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// lockExpiration bounds how long a processing claim is honored. A relay that
// crashes mid-batch releases its rows after this window.
const lockExpiration = 5 * time.Minute

// sqlOpen is swappable in tests.
var sqlOpen = sql.Open

type PostgresRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := sqlOpen("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &PostgresRepository{db: db, tracer: otel.Tracer("guest-sync")}, nil
}

// FetchPending claims up to batchSize rows under FOR UPDATE SKIP LOCKED so
// concurrent relays never double-claim. Rows that already exhausted their
// retries are marked failed instead of being returned.
func (p *PostgresRepository) FetchPending(ctx context.Context, batchSize int) ([]Event, error) {
	ctx, span := p.tracer.Start(ctx, "FetchPending")
	defer span.End()
	start := time.Now()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, type, idempotency_key, payload, retry_count, created_at FROM outbox
         WHERE (status='pending' OR (status='processing' AND updated_at < $1))
         ORDER BY created_at
         FOR UPDATE SKIP LOCKED LIMIT $2`,
		time.Now().Add(-lockExpiration), batchSize)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.IdempotencyKey, &ev.Payload, &ev.RetryCount, &ev.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE outbox SET status='processing', updated_at=$1 WHERE id = ANY($2)`,
		time.Now(), eventIDs(events))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.Int("outbox.batch", len(events)),
		attribute.Float64("db.execution_time_ms", float64(time.Since(start).Milliseconds())),
	)
	return events, nil
}

func (p *PostgresRepository) MarkProcessed(ctx context.Context, eventID string) error {
	ctx, span := p.tracer.Start(ctx, "MarkProcessed")
	defer span.End()

	_, err := p.db.ExecContext(ctx,
		`UPDATE outbox SET status='sent', sent_at=$1, updated_at=$1 WHERE id=$2`,
		time.Now(), eventID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (p *PostgresRepository) SetStatus(ctx context.Context, eventID string, status Status) error {
	ctx, span := p.tracer.Start(ctx, "SetStatus")
	defer span.End()

	_, err := p.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, updated_at=$2 WHERE id=$3`,
		status, time.Now(), eventID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (p *PostgresRepository) SetStatusAndIncrementRetry(ctx context.Context, eventID string, status Status) error {
	ctx, span := p.tracer.Start(ctx, "SetStatusAndIncrementRetry")
	defer span.End()

	_, err := p.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, retry_count = retry_count + 1, updated_at=$2 WHERE id=$3`,
		status, time.Now(), eventID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (p *PostgresRepository) Close() error {
	return p.db.Close()
}

func eventIDs(events []Event) interface{} {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return pq.Array(ids)
}
