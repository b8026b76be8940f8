package announce

import (
	"context"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/guest-sync/pkg/config"
)

// PubSubAnnouncerCreator defines a function type for creating Pub/Sub clients.
type PubSubAnnouncerCreator func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (MessageBroker, error)

// NewPubSubAnnouncer is the default implementation of PubSubAnnouncerCreator.
var NewPubSubAnnouncer PubSubAnnouncerCreator = func(ctx context.Context, settings *config.BrokerSettings, opts ...option.ClientOption) (MessageBroker, error) {
	client, err := pubsub.NewClient(ctx, settings.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	return &pubSubAnnouncer{client: client}, nil
}

type pubSubAnnouncer struct {
	client *pubsub.Client
}

func (p *pubSubAnnouncer) Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, "AnnounceDeadLetter",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("pubsub"),
			semconv.MessagingDestinationKindKey.String("topic"),
			semconv.MessagingDestinationKey.String(topic),
		),
	)
	defer span.End()

	// Inject the trace context into the message attributes
	propagator := otel.GetTextMapPropagator()
	attributes := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(attributes))

	for key, value := range headers {
		attributes[key] = value
	}

	message := &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	}

	res := p.client.Topic(topic).Publish(ctx, message)
	_, err := res.Get(ctx) // wait for server ack
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(data)),
	)

	return nil
}

func (p *pubSubAnnouncer) Close() error {
	return p.client.Close()
}
