package dlq

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/event"
)

type recordingBroker struct {
	mu       sync.Mutex
	messages []map[string]string
}

func (r *recordingBroker) Publish(ctx context.Context, topic string, data []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	headers["topic"] = topic
	r.messages = append(r.messages, headers)
	return nil
}

func (r *recordingBroker) Close() error { return nil }

func testEvent() *event.Event {
	return event.NewEvent(event.TypeGuestCreated, json.RawMessage(`{"email":"a@b.com"}`))
}

func TestEnqueueAndCollectDue(t *testing.T) {
	q := New(Options{RetryDelay: 5 * time.Minute, MaxCycles: 10}, zap.NewNop())

	now := time.Unix(1_720_000_000, 0)
	q.now = func() time.Time { return now }

	q.Enqueue(context.Background(), testEvent(), 5)
	assert.Equal(t, 1, q.Status().FailedCount)

	// Not due yet.
	assert.Empty(t, q.CollectDue())
	assert.Equal(t, 1, q.Status().FailedCount)

	now = now.Add(5*time.Minute + time.Second)
	due := q.CollectDue()
	assert.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Cycles)
	assert.Equal(t, 0, q.Status().FailedCount)
}

func TestCollectDueKeepsFutureItems(t *testing.T) {
	q := New(Options{RetryDelay: 5 * time.Minute, MaxCycles: 10}, zap.NewNop())

	now := time.Unix(1_720_000_000, 0)
	q.now = func() time.Time { return now }

	q.Enqueue(context.Background(), testEvent(), 5)

	now = now.Add(3 * time.Minute)
	q.Enqueue(context.Background(), testEvent(), 5)

	now = now.Add(2*time.Minute + time.Second)
	due := q.CollectDue()
	assert.Len(t, due, 1)
	assert.Equal(t, 1, q.Status().FailedCount)
}

func TestRequeueParksAfterMaxCycles(t *testing.T) {
	q := New(Options{RetryDelay: time.Minute, MaxCycles: 2}, zap.NewNop())

	now := time.Unix(1_720_000_000, 0)
	q.now = func() time.Time { return now }

	q.Enqueue(context.Background(), testEvent(), 5)

	for cycle := 1; cycle <= 2; cycle++ {
		now = now.Add(time.Minute + time.Second)
		due := q.CollectDue()
		assert.Len(t, due, 1, "cycle %d", cycle)
		assert.Equal(t, cycle, due[0].Cycles)
		q.Requeue(context.Background(), due[0])
	}

	// Second requeue hit the cycle cap: item parked, queue empty.
	status := q.Status()
	assert.Equal(t, 0, status.FailedCount)
	assert.Equal(t, 1, status.ParkedCount)
	assert.Len(t, q.Parked(), 1)

	now = now.Add(time.Hour)
	assert.Empty(t, q.CollectDue())
}

func TestAnnouncesQueuedAndParked(t *testing.T) {
	broker := &recordingBroker{}
	q := New(Options{RetryDelay: time.Minute, MaxCycles: 1, Topic: "dead-letter", Broker: broker}, zap.NewNop())

	now := time.Unix(1_720_000_000, 0)
	q.now = func() time.Time { return now }

	ev := testEvent()
	q.Enqueue(context.Background(), ev, 5)

	now = now.Add(2 * time.Minute)
	due := q.CollectDue()
	assert.Len(t, due, 1)
	q.Requeue(context.Background(), due[0])

	assert.Len(t, broker.messages, 2)
	assert.Equal(t, "queued", broker.messages[0]["reason"])
	assert.Equal(t, ev.IdempotencyKey, broker.messages[0]["idempotency-key"])
	assert.Equal(t, "dead-letter", broker.messages[0]["topic"])
	assert.Equal(t, "parked", broker.messages[1]["reason"])
}
