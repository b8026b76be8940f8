package outbox

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/dispatch"
	"github.com/zoff-tech/guest-sync/pkg/event"
)

// Sender performs one synchronous delivery attempt.
type Sender interface {
	Send(ctx context.Context, ev *event.Event) error
}

// Relay drains the outbox table into the webhook dispatcher. Retry accounting
// lives in the table, so delivery survives restarts: a row stays pending until
// a send succeeds or the retry budget is exhausted.
type Relay struct {
	repo         Repository
	sender       Sender
	tracer       trace.Tracer
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	maxRetries   int
}

func NewRelay(repo Repository, sender Sender, pollInterval time.Duration, batchSize, maxRetries int, logger *zap.Logger) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Relay{
		repo:         repo,
		sender:       sender,
		tracer:       otel.Tracer("guest-sync"),
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxRetries:   maxRetries,
	}
}

// Run polls until ctx is canceled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims one batch and attempts delivery of each row.
func (r *Relay) ProcessBatch(ctx context.Context) {
	events, err := r.repo.FetchPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("failed to fetch outbox batch", zap.Error(err))
		return
	}

	for i := range events {
		r.processOne(ctx, &events[i])
	}
}

func (r *Relay) processOne(ctx context.Context, row *Event) {
	ctx, span := r.tracer.Start(ctx, "RelayOutboxEvent", trace.WithAttributes(
		attribute.String("event.id", row.ID),
		attribute.String("event.type", row.Type),
		attribute.String("event.idempotency_key", row.IdempotencyKey),
		attribute.Int("event.retry_count", row.RetryCount),
	))
	defer span.End()

	if row.RetryCount >= r.maxRetries {
		r.logger.Error("outbox event exhausted retries",
			zap.String("event_id", row.ID),
			zap.String("idempotency_key", row.IdempotencyKey),
			zap.Int("retry_count", row.RetryCount),
		)
		if err := r.repo.SetStatus(ctx, row.ID, StatusFailed); err != nil {
			r.logger.Error("failed to mark outbox event failed", zap.Error(err))
		}
		return
	}

	err := r.sender.Send(ctx, row.Envelope())
	if errors.Is(err, dispatch.ErrBreakerOpen) {
		// Not an endpoint verdict; release the row without burning a retry.
		span.SetAttributes(attribute.Bool("outbox.short_circuited", true))
		if err := r.repo.SetStatus(ctx, row.ID, StatusPending); err != nil {
			r.logger.Error("failed to release outbox event", zap.Error(err))
		}
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		r.logger.Error("outbox delivery failed",
			zap.String("event_id", row.ID),
			zap.String("idempotency_key", row.IdempotencyKey),
			zap.Error(err),
		)
		if err := r.repo.SetStatusAndIncrementRetry(ctx, row.ID, StatusPending); err != nil {
			r.logger.Error("failed to update outbox retry count", zap.Error(err))
		}
		return
	}

	if err := r.repo.MarkProcessed(ctx, row.ID); err != nil {
		// The send succeeded; the consumer deduplicates the redelivery that
		// follows from this row staying claimed.
		r.logger.Error("failed to mark outbox event sent", zap.Error(err))
		return
	}
	r.logger.Info("outbox event delivered",
		zap.String("event_id", row.ID),
		zap.String("idempotency_key", row.IdempotencyKey),
	)
}
