package breaker

import (
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Snapshot is a read-only view of the breaker for status reporting.
type Snapshot struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
}

// CircuitBreaker gates outbound delivery attempts. After Threshold
// consecutive failures it opens and fails fast; after Cooldown it lets one
// probe through, closing on success and reopening on failure.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	lastFailure  time.Time
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
}

// New creates a closed CircuitBreaker with the given threshold and cooldown.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// NewWithClock is New with an injectable clock, for tests.
func NewWithClock(threshold int, cooldown time.Duration, now func() time.Time) *CircuitBreaker {
	cb := New(threshold, cooldown)
	cb.now = now
	return cb
}

// Allow reports whether a delivery attempt may be issued. While open and
// still inside the cooldown window it returns false; once the cooldown has
// elapsed the breaker moves to half-open and admits a single probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.lastFailure) < cb.cooldown {
		return false
	}
	cb.state = StateHalfOpen
	return true
}

// RecordSuccess resets the breaker after a successful attempt. A half-open
// probe succeeding closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
}

// RecordFailure increments the consecutive-failure count and opens the
// breaker once the threshold is reached. A half-open probe failing reopens
// it with a fresh cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
		cb.state = StateOpen
	}
}

// Snapshot returns the current state for the status surface.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Snapshot{
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
	}
}
