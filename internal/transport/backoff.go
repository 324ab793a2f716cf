package transport

import (
	"math/rand"
	"time"
)

// backoff computes bounded exponential reconnect delays for EVENT
// clients, adapted from the teacher's HTTPClient.Do retry loop and
// CircuitBreaker (client.go) but reshaped into a pure sequence generator
// with no attempt limit of its own instead of a request-scoped retry
// count; the caller (EventClient.reconnect) decides how many delays to
// draw.
type backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max}
}

// Next returns the delay before the next reconnect attempt and advances
// the sequence. Jitter is +/-20% to avoid a thundering herd of backends
// reconnecting in lockstep.
func (b *backoff) Next() time.Duration {
	d := b.initial << b.attempt
	if d <= 0 || d > b.max {
		d = b.max
	}
	b.attempt++

	jitter := float64(d) * 0.2
	delta := (rand.Float64()*2 - 1) * jitter
	out := time.Duration(float64(d) + delta)
	if out < 0 {
		out = 0
	}
	return out
}

// Reset returns the sequence to its initial delay, called after a
// successful reconnect.
func (b *backoff) Reset() {
	b.attempt = 0
}

// circuitState mirrors the teacher's CircuitBreaker open/closed states,
// used by HTTP and EVENT clients to stop hammering a backend that is
// failing every call.
type circuitState string

const (
	circuitClosed circuitState = "closed"
	circuitOpen   circuitState = "open"
)

type circuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	failures int
	lastFail time.Time
	state    circuitState
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout, state: circuitClosed}
}

func (cb *circuitBreaker) CanExecute() bool {
	if cb.state == circuitClosed {
		return true
	}
	return time.Since(cb.lastFail) > cb.resetTimeout
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.failures = 0
	cb.state = circuitClosed
}

func (cb *circuitBreaker) RecordFailure() {
	cb.failures++
	cb.lastFail = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.state = circuitOpen
	}
}
