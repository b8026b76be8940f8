package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStaysClosedBelowThreshold(t *testing.T) {
	cb := New(5, time.Minute)

	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}

	snap := cb.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 4, snap.Failures)
	assert.True(t, cb.Allow())
}

func TestOpensAtThreshold(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	cb := NewWithClock(5, time.Minute, func() time.Time { return now })

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.Snapshot().State)

	// Inside the cooldown window no attempt gets through.
	for i := 0; i < 10; i++ {
		assert.False(t, cb.Allow())
	}
}

func TestHalfOpenProbeAfterCooldown(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	cb := NewWithClock(5, time.Minute, func() time.Time { return now })

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	assert.False(t, cb.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.Snapshot().State)
}

func TestProbeSuccessCloses(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	cb := NewWithClock(5, time.Minute, func() time.Time { return now })

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	snap := cb.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.Failures)
	assert.True(t, cb.Allow())
}

func TestProbeFailureReopensWithFreshCooldown(t *testing.T) {
	now := time.Unix(1_720_000_000, 0)
	cb := NewWithClock(5, time.Minute, func() time.Time { return now })

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.Snapshot().State)
	assert.False(t, cb.Allow())

	// The cooldown restarted at the probe failure, not the original failure.
	now = now.Add(30 * time.Second)
	assert.False(t, cb.Allow())
	now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
}

func TestFailureAlwaysCounts(t *testing.T) {
	cb := New(5, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, 1, cb.Snapshot().Failures)
}
