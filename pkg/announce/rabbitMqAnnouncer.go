package announce

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/guest-sync/pkg/config"
)

type RabbitMqAnnouncerCreator func(ctx context.Context, settings *config.BrokerSettings) (MessageBroker, error)

var NewRabbitMqAnnouncer RabbitMqAnnouncerCreator = func(ctx context.Context, settings *config.BrokerSettings) (MessageBroker, error) {
	conn, err := amqp.Dial(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	err = ch.ExchangeDeclare(
		settings.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &rabbitMqAnnouncer{connection: conn, channel: ch, exchange: settings.Exchange}, nil
}

type rabbitMqAnnouncer struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	exchange   string
}

func (r *rabbitMqAnnouncer) Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error {
	tracer := otel.Tracer("guest-sync")
	ctx, span := tracer.Start(ctx, "AnnounceDeadLetter",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKey.String(r.exchange),
			semconv.MessagingRabbitmqRoutingKeyKey.String(topic),
		),
	)
	defer span.End()

	// Inject the trace context into the message headers
	propagator := otel.GetTextMapPropagator()
	traceHeaders := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(traceHeaders))

	amqpHeaders := make(amqp.Table)
	for k, v := range headers {
		amqpHeaders[k] = v
	}
	for k, v := range traceHeaders {
		amqpHeaders[k] = v
	}

	err := r.channel.Publish(
		r.exchange, topic, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
			Headers:     amqpHeaders,
		},
	)
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(data)),
	)

	return nil
}

func (r *rabbitMqAnnouncer) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}
