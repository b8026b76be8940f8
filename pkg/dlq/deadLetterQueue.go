package dlq

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/announce"
	"github.com/zoff-tech/guest-sync/pkg/event"
)

// Item wraps an event that exhausted its delivery retries.
type Item struct {
	Event       *event.Event `json:"event"`
	RetryCount  int          `json:"retry_count"`
	Cycles      int          `json:"cycles"` // completed queue->dispatch->exhaust round trips
	NextRetryAt time.Time    `json:"next_retry_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Status is the read-only view exposed by the operational endpoint.
type Status struct {
	FailedCount int `json:"failed_count"`
	ParkedCount int `json:"parked_count"`
}

// Queue holds events that exhausted their retries until the periodic sweep
// re-dispatches them. An item that keeps exhausting retries is re-queued with
// an incremented cycle count; past MaxCycles it is parked instead of
// recirculating forever, kept for inspection and announced if a broker is
// configured.
type Queue struct {
	mu     sync.Mutex
	items  []*Item
	parked []*Item

	retryDelay time.Duration
	maxCycles  int
	topic      string
	broker     announce.MessageBroker
	logger     *zap.Logger
	now        func() time.Time
}

// Options configures a Queue. Broker may be nil.
type Options struct {
	RetryDelay time.Duration
	MaxCycles  int
	Topic      string
	Broker     announce.MessageBroker
}

func New(opts Options, logger *zap.Logger) *Queue {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Minute
	}
	if opts.MaxCycles <= 0 {
		opts.MaxCycles = 10
	}
	return &Queue{
		retryDelay: opts.RetryDelay,
		maxCycles:  opts.MaxCycles,
		topic:      opts.Topic,
		broker:     opts.Broker,
		logger:     logger,
		now:        time.Now,
	}
}

// Enqueue adds a freshly exhausted event to the queue.
func (q *Queue) Enqueue(ctx context.Context, ev *event.Event, retryCount int) {
	now := q.now()
	item := &Item{
		Event:       ev,
		RetryCount:  retryCount,
		NextRetryAt: now.Add(q.retryDelay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.push(ctx, item, "queued")
}

// Requeue puts a swept item back after it exhausted retries again. Cycle
// accounting happened at CollectDue time, so past MaxCycles the item is
// parked here.
func (q *Queue) Requeue(ctx context.Context, item *Item) {
	now := q.now()
	item.NextRetryAt = now.Add(q.retryDelay)
	item.UpdatedAt = now

	if item.Cycles >= q.maxCycles {
		q.mu.Lock()
		q.parked = append(q.parked, item)
		parked := len(q.parked)
		q.mu.Unlock()

		parkedTotal.Inc()
		q.logger.Error("dead-letter item exceeded max cycles, parking",
			zap.String("event_type", string(item.Event.Type)),
			zap.String("idempotency_key", item.Event.IdempotencyKey),
			zap.Int("cycles", item.Cycles),
			zap.Int("parked_count", parked),
		)
		q.announceItem(ctx, item, "parked")
		return
	}

	q.push(ctx, item, "requeued")
}

// CollectDue removes and returns every item whose retry time has arrived,
// incrementing its cycle count. The caller re-dispatches the returned items.
func (q *Queue) CollectDue() []*Item {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*Item
	var remaining []*Item
	for _, item := range q.items {
		if !item.NextRetryAt.After(now) {
			item.Cycles++
			due = append(due, item)
		} else {
			remaining = append(remaining, item)
		}
	}
	q.items = remaining
	return due
}

// Status returns current queue counters.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{FailedCount: len(q.items), ParkedCount: len(q.parked)}
}

// Parked returns a copy of the parked items for inspection.
func (q *Queue) Parked() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Item, len(q.parked))
	copy(out, q.parked)
	return out
}

func (q *Queue) push(ctx context.Context, item *Item, reason string) {
	q.mu.Lock()
	q.items = append(q.items, item)
	size := len(q.items)
	q.mu.Unlock()

	q.logger.Warn("event dead-lettered",
		zap.String("event_type", string(item.Event.Type)),
		zap.String("idempotency_key", item.Event.IdempotencyKey),
		zap.String("reason", reason),
		zap.Int("cycles", item.Cycles),
		zap.Int("queue_size", size),
	)
	q.announceItem(ctx, item, reason)
}

func (q *Queue) announceItem(ctx context.Context, item *Item, reason string) {
	if q.broker == nil {
		return
	}
	data, err := item.Event.Encode()
	if err != nil {
		q.logger.Error("failed to encode dead-letter announcement", zap.Error(err))
		return
	}
	headers := map[string]string{
		"event-type":      string(item.Event.Type),
		"idempotency-key": item.Event.IdempotencyKey,
		"reason":          reason,
	}
	if err := q.broker.Publish(ctx, q.topic, data, headers); err != nil {
		q.logger.Error("failed to announce dead-letter item",
			zap.String("idempotency_key", item.Event.IdempotencyKey),
			zap.Error(err),
		)
	}
}
