package store

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/spanner"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zoff-tech/guest-sync/pkg/config"
)

var sqlOpen = sql.Open

var mongoConnect = mongo.Connect

var NewSpannerEventStoreFactory = func(client *spanner.Client) EventStore {
	return &SpannerEventStore{client: client}
}

// NewEventStore builds the durable event store selected by configuration.
func NewEventStore(ctx context.Context, cfg config.DbSettings) (EventStore, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sqlOpen("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &PostgresEventStore{db: db}, nil
	case "mongo":
		client, err := mongoConnect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, err
		}
		return NewMongoEventStore(ctx, client, cfg.DBName, cfg.Collection)
	case "spanner":
		client, err := spanner.NewClient(ctx, cfg.URI)
		if err != nil {
			return nil, err
		}
		return NewSpannerEventStoreFactory(client), nil
	default:
		return nil, fmt.Errorf("unsupported DB type: %s", cfg.Type)
	}
}
