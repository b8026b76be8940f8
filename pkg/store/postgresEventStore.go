package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

const pgUniqueViolation = "23505"

const insertEventSQL = `INSERT INTO events (type, idempotency_key, timestamp, payload, signature, source_ip, received_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`

type PostgresEventStore struct {
	db *sql.DB
}

func (p *PostgresEventStore) FindEvent(ctx context.Context, idempotencyKey string) (*ReceivedEvent, error) {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, "FindEvent")
	defer span.End()

	startTime := time.Now()

	var rec ReceivedEvent
	var sourceIP sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT type, idempotency_key, timestamp, payload, signature, source_ip, received_at
         FROM events WHERE idempotency_key = $1`, idempotencyKey).
		Scan(&rec.Type, &rec.IdempotencyKey, &rec.Timestamp, &rec.Payload, &rec.Signature, &sourceIP, &rec.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rec.SourceIP = sourceIP.String

	addDBStatsToSpan(span, "postgresql", "FindEvent", time.Since(startTime))
	return &rec, nil
}

func (p *PostgresEventStore) AdmitGuest(ctx context.Context, rec *ReceivedEvent, g *event.GuestPayload) error {
	return p.admit(ctx, "AdmitGuest", rec, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO guest_profiles (email, name, phone, date_of_birth, country, total_reservations, nights_lifetime, created_at, updated_at)
             VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), 0, 0, now(), now())
             ON CONFLICT (email) DO UPDATE SET
                 name = COALESCE(EXCLUDED.name, guest_profiles.name),
                 phone = COALESCE(EXCLUDED.phone, guest_profiles.phone),
                 date_of_birth = COALESCE(EXCLUDED.date_of_birth, guest_profiles.date_of_birth),
                 country = COALESCE(EXCLUDED.country, guest_profiles.country),
                 updated_at = now()`,
			g.Email, g.Name, g.Phone, g.DateOfBirth, g.Country)
		return err
	})
}

func (p *PostgresEventStore) AdmitReservation(ctx context.Context, rec *ReceivedEvent, r *event.ReservationPayload) error {
	snapshot, err := json.Marshal(reservationSnapshot(r))
	if err != nil {
		return err
	}
	nights := nightsBetween(r.CheckIn, r.CheckOut)

	return p.admit(ctx, "AdmitReservation", rec, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO guest_profiles (email, total_reservations, nights_lifetime, last_reservation, created_at, updated_at)
             VALUES ($1, 1, $2, $3, now(), now())
             ON CONFLICT (email) DO UPDATE SET
                 total_reservations = guest_profiles.total_reservations + 1,
                 nights_lifetime = guest_profiles.nights_lifetime + EXCLUDED.nights_lifetime,
                 last_reservation = EXCLUDED.last_reservation,
                 updated_at = now()`,
			r.Guest.Email, nights, snapshot)
		return err
	})
}

func (p *PostgresEventStore) AdmitRecordOnly(ctx context.Context, rec *ReceivedEvent) error {
	return p.admit(ctx, "AdmitRecordOnly", rec, nil)
}

func (p *PostgresEventStore) Close(ctx context.Context) error {
	return p.db.Close()
}

// admit inserts the event row and runs the projection in one transaction.
// The unique index on idempotency_key is the arbiter for duplicates: a
// violation aborts the transaction and surfaces as ErrDuplicateEvent.
func (p *PostgresEventStore) admit(ctx context.Context, spanName string, rec *ReceivedEvent, project func(tx *sql.Tx) error) error {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	startTime := time.Now()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, insertEventSQL,
		rec.Type, rec.IdempotencyKey, rec.Timestamp, []byte(rec.Payload), rec.Signature,
		sql.NullString{String: rec.SourceIP, Valid: rec.SourceIP != ""}, rec.ReceivedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			err = ErrDuplicateEvent
			return err
		}
		span.RecordError(err)
		return err
	}

	if project != nil {
		if err = project(tx); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		span.RecordError(err)
		return err
	}

	addDBStatsToSpan(span, "postgresql", spanName, time.Since(startTime))
	return nil
}
