package store

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/spanner"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc/codes"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

type SpannerEventStore struct {
	client *spanner.Client
}

func (s *SpannerEventStore) FindEvent(ctx context.Context, idempotencyKey string) (*ReceivedEvent, error) {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, "FindEvent")
	defer span.End()

	startTime := time.Now()

	row, err := s.client.Single().ReadRow(ctx, "events", spanner.Key{idempotencyKey},
		[]string{"type", "idempotency_key", "timestamp", "payload", "signature", "source_ip", "received_at"})
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var rec ReceivedEvent
	var payload string
	var sourceIP spanner.NullString
	if err := row.Columns(&rec.Type, &rec.IdempotencyKey, &rec.Timestamp, &payload, &rec.Signature, &sourceIP, &rec.ReceivedAt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	rec.SourceIP = sourceIP.StringVal

	addDBStatsToSpan(span, "spanner", "FindEvent", time.Since(startTime))
	return &rec, nil
}

func (s *SpannerEventStore) AdmitGuest(ctx context.Context, rec *ReceivedEvent, g *event.GuestPayload) error {
	return s.admit(ctx, "AdmitGuest", rec, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		profile, err := s.readProfile(ctx, txn, g.Email)
		if err != nil {
			return err
		}
		if g.Name != "" {
			profile["name"] = g.Name
		}
		if g.Phone != "" {
			profile["phone"] = g.Phone
		}
		if g.DateOfBirth != "" {
			profile["date_of_birth"] = g.DateOfBirth
		}
		if g.Country != "" {
			profile["country"] = g.Country
		}
		profile["updated_at"] = time.Now()
		return txn.BufferWrite([]*spanner.Mutation{spanner.InsertOrUpdateMap("guest_profiles", profile)})
	})
}

func (s *SpannerEventStore) AdmitReservation(ctx context.Context, rec *ReceivedEvent, r *event.ReservationPayload) error {
	snapshot, err := json.Marshal(reservationSnapshot(r))
	if err != nil {
		return err
	}
	nights := nightsBetween(r.CheckIn, r.CheckOut)

	return s.admit(ctx, "AdmitReservation", rec, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		profile, err := s.readProfile(ctx, txn, r.Guest.Email)
		if err != nil {
			return err
		}
		profile["total_reservations"] = profile["total_reservations"].(int64) + 1
		profile["nights_lifetime"] = profile["nights_lifetime"].(int64) + int64(nights)
		profile["last_reservation"] = string(snapshot)
		profile["updated_at"] = time.Now()
		return txn.BufferWrite([]*spanner.Mutation{spanner.InsertOrUpdateMap("guest_profiles", profile)})
	})
}

func (s *SpannerEventStore) AdmitRecordOnly(ctx context.Context, rec *ReceivedEvent) error {
	return s.admit(ctx, "AdmitRecordOnly", rec, nil)
}

func (s *SpannerEventStore) Close(ctx context.Context) error {
	s.client.Close()
	return nil
}

// readProfile loads the guest profile keyed by email, or a zeroed row when
// the guest is new.
func (s *SpannerEventStore) readProfile(ctx context.Context, txn *spanner.ReadWriteTransaction, email string) (map[string]interface{}, error) {
	profile := map[string]interface{}{
		"email":              email,
		"total_reservations": int64(0),
		"nights_lifetime":    int64(0),
		"created_at":         time.Now(),
	}

	row, err := txn.ReadRow(ctx, "guest_profiles", spanner.Key{email},
		[]string{"total_reservations", "nights_lifetime"})
	if spanner.ErrCode(err) == codes.NotFound {
		return profile, nil
	}
	if err != nil {
		return nil, err
	}

	var total, nights int64
	if err := row.Columns(&total, &nights); err != nil {
		return nil, err
	}
	profile["total_reservations"] = total
	profile["nights_lifetime"] = nights
	delete(profile, "created_at")
	return profile, nil
}

func (s *SpannerEventStore) admit(ctx context.Context, spanName string, rec *ReceivedEvent, project func(ctx context.Context, txn *spanner.ReadWriteTransaction) error) error {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	startTime := time.Now()

	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		// A plain Insert makes the commit fail with AlreadyExists when the
		// idempotency key is taken; that failure is the duplicate signal.
		err := txn.BufferWrite([]*spanner.Mutation{spanner.InsertMap("events", map[string]interface{}{
			"type":            rec.Type,
			"idempotency_key": rec.IdempotencyKey,
			"timestamp":       rec.Timestamp,
			"payload":         string(rec.Payload),
			"signature":       rec.Signature,
			"source_ip":       rec.SourceIP,
			"received_at":     rec.ReceivedAt,
		})})
		if err != nil {
			return err
		}
		if project != nil {
			return project(ctx, txn)
		}
		return nil
	})
	if spanner.ErrCode(err) == codes.AlreadyExists {
		return ErrDuplicateEvent
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	addDBStatsToSpan(span, "spanner", spanName, time.Since(startTime))
	return nil
}
