package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zoff-tech/guest-sync/pkg/dispatch"
	"github.com/zoff-tech/guest-sync/pkg/event"
)

type fakeRepo struct {
	pending    []Event
	fetchErr   error
	processed  []string
	statuses   map[string]Status
	retryBumps map[string]int
}

func newFakeRepo(pending ...Event) *fakeRepo {
	return &fakeRepo{
		pending:    pending,
		statuses:   map[string]Status{},
		retryBumps: map[string]int{},
	}
}

func (f *fakeRepo) FetchPending(context.Context, int) ([]Event, error) {
	return f.pending, f.fetchErr
}

func (f *fakeRepo) MarkProcessed(_ context.Context, id string) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id string, s Status) error {
	f.statuses[id] = s
	return nil
}

func (f *fakeRepo) SetStatusAndIncrementRetry(_ context.Context, id string, s Status) error {
	f.statuses[id] = s
	f.retryBumps[id]++
	return nil
}

func (f *fakeRepo) Close() error { return nil }

type fakeSender struct {
	err  error
	sent []*event.Event
}

func (f *fakeSender) Send(_ context.Context, ev *event.Event) error {
	f.sent = append(f.sent, ev)
	return f.err
}

func pendingRow(id, key string) Event {
	return Event{
		ID:             id,
		Type:           "guest.created",
		IdempotencyKey: key,
		Payload:        []byte(`{"id":1,"email":"ada@example.com"}`),
		Status:         StatusPending,
	}
}

func TestProcessBatchMarksSent(t *testing.T) {
	repo := newFakeRepo(pendingRow("1", "key-aaaa-0001"), pendingRow("2", "key-aaaa-0002"))
	sender := &fakeSender{}
	relay := NewRelay(repo, sender, 0, 0, 3, zap.NewNop())

	relay.ProcessBatch(context.Background())

	assert.Equal(t, []string{"1", "2"}, repo.processed)
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, "key-aaaa-0001", sender.sent[0].IdempotencyKey)
}

func TestProcessBatchRequeuesOnFailure(t *testing.T) {
	repo := newFakeRepo(pendingRow("1", "key-aaaa-0001"))
	sender := &fakeSender{err: errors.New("endpoint down")}
	relay := NewRelay(repo, sender, 0, 0, 3, zap.NewNop())

	relay.ProcessBatch(context.Background())

	assert.Empty(t, repo.processed)
	assert.Equal(t, StatusPending, repo.statuses["1"])
	assert.Equal(t, 1, repo.retryBumps["1"])
}

func TestProcessBatchReleasesOnOpenBreaker(t *testing.T) {
	repo := newFakeRepo(pendingRow("1", "key-aaaa-0001"))
	sender := &fakeSender{err: dispatch.ErrBreakerOpen}
	relay := NewRelay(repo, sender, 0, 0, 3, zap.NewNop())

	relay.ProcessBatch(context.Background())

	// A short circuit is not an endpoint verdict: the row goes back to
	// pending without burning a retry.
	assert.Equal(t, StatusPending, repo.statuses["1"])
	assert.Zero(t, repo.retryBumps["1"])
}

func TestProcessBatchFailsExhaustedRows(t *testing.T) {
	row := pendingRow("1", "key-aaaa-0001")
	row.RetryCount = 3
	repo := newFakeRepo(row)
	sender := &fakeSender{}
	relay := NewRelay(repo, sender, 0, 0, 3, zap.NewNop())

	relay.ProcessBatch(context.Background())

	assert.Empty(t, sender.sent, "exhausted rows must not be sent")
	assert.Equal(t, StatusFailed, repo.statuses["1"])
}

func TestProcessBatchSkipsOnFetchError(t *testing.T) {
	repo := newFakeRepo(pendingRow("1", "key-aaaa-0001"))
	repo.fetchErr = errors.New("connection reset")
	sender := &fakeSender{}
	relay := NewRelay(repo, sender, 0, 0, 3, zap.NewNop())

	relay.ProcessBatch(context.Background())

	assert.Empty(t, sender.sent)
	assert.Empty(t, repo.processed)
}
