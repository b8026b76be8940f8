package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/breaker"
	"github.com/zoff-tech/guest-sync/pkg/config"
	"github.com/zoff-tech/guest-sync/pkg/dlq"
	"github.com/zoff-tech/guest-sync/pkg/event"
	"github.com/zoff-tech/guest-sync/pkg/signature"
)

// ErrBreakerOpen is returned by Send when the circuit breaker rejects the
// attempt without a network call.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Status is the read-only dispatch state for the operational endpoint.
type Status struct {
	CircuitBreaker breaker.Snapshot `json:"circuit_breaker"`
	Queue          QueueStatus      `json:"queue"`
}

type QueueStatus struct {
	FailedCount     int `json:"failed_count"`
	ProcessingCount int `json:"processing_count"`
	ParkedCount     int `json:"parked_count"`
}

type job struct {
	ev      *event.Event
	attempt int
	item    *dlq.Item // non-nil when the job came off the dead-letter sweep
}

// Dispatcher delivers signed webhook events to the configured consumer
// endpoint. Emit is fire-and-forget: the HTTP exchange runs on a bounded
// worker pool and never blocks the caller. Failed attempts are rescheduled by
// timer with a fixed backoff table and exhaust into the dead-letter queue.
type Dispatcher struct {
	cfg     config.WebhookSettings
	breaker *breaker.CircuitBreaker
	queue   *dlq.Queue
	client  *http.Client
	logger  *zap.Logger
	tracer  trace.Tracer

	jobs chan job
	stop chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{} // idempotency_key + attempt, dedup for double-fired timers

	afterFunc func(time.Duration, func()) *time.Timer
}

// NewDispatcher creates a Dispatcher and starts its worker pool.
func NewDispatcher(cfg config.WebhookSettings, cb *breaker.CircuitBreaker, queue *dlq.Queue, logger *zap.Logger) *Dispatcher {
	workers := cfg.WorkerPool
	if workers <= 0 {
		workers = 64
	}
	d := &Dispatcher{
		cfg:       cfg,
		breaker:   cb,
		queue:     queue,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		tracer:    otel.Tracer("guest-sync"),
		jobs:      make(chan job, workers*2),
		stop:      make(chan struct{}),
		inFlight:  make(map[string]struct{}),
		afterFunc: time.AfterFunc,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Configured reports whether a delivery endpoint and secret are set.
func (d *Dispatcher) Configured() bool {
	return d.cfg.URL != "" && d.cfg.Secret != ""
}

// Emit submits an event for asynchronous delivery and returns immediately.
// Delivery is best-effort: if the process dies before the send completes the
// event is lost. Deployments that need at-least-once run the outbox relay
// and Send instead. Without a configured endpoint Emit is a logged no-op.
func (d *Dispatcher) Emit(ev *event.Event) {
	if !d.Configured() {
		d.logger.Warn("webhook not configured, skipping",
			zap.String("event_type", string(ev.Type)),
		)
		return
	}
	d.submit(job{ev: ev})
}

// Send delivers one event synchronously through the circuit breaker and
// reports the outcome. It performs a single attempt: retry accounting belongs
// to the caller (the outbox relay keeps it in the outbox table).
func (d *Dispatcher) Send(ctx context.Context, ev *event.Event) error {
	if !d.Configured() {
		return errors.New("webhook not configured")
	}
	if !d.breaker.Allow() {
		shortCircuitedTotal.Inc()
		return ErrBreakerOpen
	}
	err := d.attempt(ctx, ev, 0)
	if err != nil {
		d.breaker.RecordFailure()
		failedAttemptsTotal.Inc()
		return err
	}
	d.breaker.RecordSuccess()
	deliveredTotal.Inc()
	return nil
}

// Status returns the breaker and queue state for the monitoring surface.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	processing := len(d.inFlight)
	d.mu.Unlock()

	qs := d.queue.Status()
	return Status{
		CircuitBreaker: d.breaker.Snapshot(),
		Queue: QueueStatus{
			FailedCount:     qs.FailedCount,
			ProcessingCount: processing,
			ParkedCount:     qs.ParkedCount,
		},
	}
}

// RunSweeper periodically re-dispatches dead-lettered events whose retry time
// has arrived. It blocks until ctx is canceled.
func (d *Dispatcher) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("dead-letter sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep()
		}
	}
}

// Sweep runs one sweep cycle: due items re-enter the full dispatch path.
func (d *Dispatcher) Sweep() {
	for _, item := range d.queue.CollectDue() {
		d.logger.Info("retrying dead-lettered event",
			zap.String("event_type", string(item.Event.Type)),
			zap.String("idempotency_key", item.Event.IdempotencyKey),
			zap.Int("cycles", item.Cycles),
		)
		d.submit(job{ev: item.Event, item: item})
	}
}

// Close stops the worker pool. In-flight attempts finish; queued jobs are
// dropped.
func (d *Dispatcher) Close() {
	close(d.stop)
	d.wg.Wait()
}

// submit hands a job to the worker pool without blocking. A saturated pool
// fails closed: the event goes to the dead-letter queue instead of growing an
// unbounded backlog.
func (d *Dispatcher) submit(j job) {
	select {
	case d.jobs <- j:
	default:
		droppedTotal.Inc()
		d.logger.Warn("dispatch pool saturated, dead-lettering event",
			zap.String("event_type", string(j.ev.Type)),
			zap.String("idempotency_key", j.ev.IdempotencyKey),
		)
		d.deadLetter(j)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case j := <-d.jobs:
			d.deliver(context.Background(), j)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	if !d.breaker.Allow() {
		shortCircuitedTotal.Inc()
		d.logger.Warn("circuit breaker open, dead-lettering event",
			zap.String("event_type", string(j.ev.Type)),
			zap.String("idempotency_key", j.ev.IdempotencyKey),
		)
		d.deadLetter(j)
		return
	}

	// Guard against a timer firing twice for the same logical attempt.
	attemptKey := j.ev.IdempotencyKey + "_" + strconv.Itoa(j.attempt)
	d.mu.Lock()
	if _, busy := d.inFlight[attemptKey]; busy {
		d.mu.Unlock()
		d.logger.Warn("attempt already in flight, skipping",
			zap.String("idempotency_key", j.ev.IdempotencyKey),
			zap.Int("attempt", j.attempt),
		)
		return
	}
	d.inFlight[attemptKey] = struct{}{}
	d.mu.Unlock()

	err := d.attempt(ctx, j.ev, j.attempt)

	d.mu.Lock()
	delete(d.inFlight, attemptKey)
	d.mu.Unlock()

	if err == nil {
		d.breaker.RecordSuccess()
		deliveredTotal.Inc()
		d.logger.Info("webhook delivered",
			zap.String("event_type", string(j.ev.Type)),
			zap.String("idempotency_key", j.ev.IdempotencyKey),
			zap.Int("attempt", j.attempt),
		)
		return
	}

	d.breaker.RecordFailure()
	failedAttemptsTotal.Inc()
	d.logger.Error("webhook delivery failed",
		zap.String("event_type", string(j.ev.Type)),
		zap.String("idempotency_key", j.ev.IdempotencyKey),
		zap.Int("attempt", j.attempt),
		zap.Error(err),
	)

	if j.attempt < d.cfg.MaxRetries {
		delay := d.retryDelay(j.attempt)
		d.logger.Info("scheduling webhook retry",
			zap.String("idempotency_key", j.ev.IdempotencyKey),
			zap.Int("attempt", j.attempt+1),
			zap.Duration("delay", delay),
		)
		next := job{ev: j.ev, attempt: j.attempt + 1, item: j.item}
		d.afterFunc(delay, func() { d.submit(next) })
		return
	}

	d.deadLetter(j)
}

// retryDelay indexes the fixed backoff table, capped at its last entry.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delays := d.cfg.RetryDelays
	if len(delays) == 0 {
		return 30 * time.Second
	}
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}

func (d *Dispatcher) deadLetter(j job) {
	deadLetteredTotal.Inc()
	if j.item != nil {
		d.queue.Requeue(context.Background(), j.item)
		return
	}
	d.queue.Enqueue(context.Background(), j.ev, j.attempt)
}

// attempt performs one signed HTTP POST. Any 2xx response is success;
// anything else, including transport errors, is a failure for retry and
// breaker purposes.
func (d *Dispatcher) attempt(ctx context.Context, ev *event.Event, attempt int) error {
	ctx, span := d.tracer.Start(ctx, "DeliverWebhook", trace.WithAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.idempotency_key", ev.IdempotencyKey),
		attribute.Int("event.attempt", attempt),
	))
	defer span.End()

	body, err := ev.Encode()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("encode event: %w", err)
	}
	sig := signature.Sign(d.cfg.Secret, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Idempotency-Key", ev.IdempotencyKey)
	req.Header.Set("X-Event-Type", string(ev.Type))
	req.Header.Set("X-Timestamp", strconv.FormatInt(ev.Timestamp, 10))

	// Inject the trace context into the request headers
	propagator := otel.GetTextMapPropagator()
	propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
