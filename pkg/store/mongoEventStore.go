package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

const profilesCollection = "guest_profiles"

type MongoEventStore struct {
	client     *mongo.Client
	database   string
	collection string
}

func NewMongoEventStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoEventStore, error) {
	if collection == "" {
		collection = "events"
	}
	m := &MongoEventStore{
		client:     client,
		database:   database,
		collection: collection,
	}

	// The unique index is the duplicate arbiter; create it up front.
	events := client.Database(database).Collection(collection)
	_, err := events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}

	profiles := client.Database(database).Collection(profilesCollection)
	_, err = profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *MongoEventStore) FindEvent(ctx context.Context, idempotencyKey string) (*ReceivedEvent, error) {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, "FindEvent")
	defer span.End()

	startTime := time.Now()

	var rec ReceivedEvent
	err := m.client.Database(m.database).Collection(m.collection).
		FindOne(ctx, bson.M{"idempotency_key": idempotencyKey}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	addDBStatsToSpan(span, "mongodb", "FindEvent", time.Since(startTime))
	return &rec, nil
}

func (m *MongoEventStore) AdmitGuest(ctx context.Context, rec *ReceivedEvent, g *event.GuestPayload) error {
	return m.admit(ctx, "AdmitGuest", rec, func(sc mongo.SessionContext) error {
		now := time.Now()
		set := bson.M{"updated_at": now}
		for field, value := range map[string]string{
			"name":          g.Name,
			"phone":         g.Phone,
			"date_of_birth": g.DateOfBirth,
			"country":       g.Country,
		} {
			if value != "" {
				set[field] = value
			}
		}
		_, err := m.client.Database(m.database).Collection(profilesCollection).UpdateOne(sc,
			bson.M{"email": g.Email},
			bson.M{
				"$set":         set,
				"$setOnInsert": bson.M{"created_at": now, "total_reservations": 0, "nights_lifetime": 0},
			},
			options.Update().SetUpsert(true))
		return err
	})
}

func (m *MongoEventStore) AdmitReservation(ctx context.Context, rec *ReceivedEvent, r *event.ReservationPayload) error {
	nights := nightsBetween(r.CheckIn, r.CheckOut)
	return m.admit(ctx, "AdmitReservation", rec, func(sc mongo.SessionContext) error {
		now := time.Now()
		_, err := m.client.Database(m.database).Collection(profilesCollection).UpdateOne(sc,
			bson.M{"email": r.Guest.Email},
			bson.M{
				"$inc":         bson.M{"total_reservations": 1, "nights_lifetime": nights},
				"$set":         bson.M{"last_reservation": reservationSnapshot(r), "updated_at": now},
				"$setOnInsert": bson.M{"created_at": now},
			},
			options.Update().SetUpsert(true))
		return err
	})
}

func (m *MongoEventStore) AdmitRecordOnly(ctx context.Context, rec *ReceivedEvent) error {
	return m.admit(ctx, "AdmitRecordOnly", rec, nil)
}

func (m *MongoEventStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoEventStore) admit(ctx context.Context, spanName string, rec *ReceivedEvent, project func(sc mongo.SessionContext) error) error {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	startTime := time.Now()

	session, err := m.client.StartSession()
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := m.client.Database(m.database).Collection(m.collection).InsertOne(sc, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrDuplicateEvent
			}
			return nil, err
		}
		if project != nil {
			if err := project(sc); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	addDBStatsToSpan(span, "mongodb", spanName, time.Since(startTime))
	return nil
}
