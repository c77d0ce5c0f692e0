// Package resilience provides the circuit breaker guarding upstream dials.
//
// Every downstream config message triggers a fresh dial against the model
// API. When that endpoint is down, a [Breaker] fails those dials fast instead
// of letting every retry hold a socket open against a dead endpoint.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is tripped and the
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure trips it again.
	HalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithTripAfter sets how many consecutive failures trip the breaker.
// The default is 5.
func WithTripAfter(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.tripAfter = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
// The default is 30 seconds.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithProbes sets how many successful half-open probes close the breaker.
// The default is 3.
func WithProbes(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.probes = n
		}
	}
}

// Breaker is a three-state circuit breaker (closed, open, half-open). It is
// safe for concurrent use.
type Breaker struct {
	name      string
	log       *slog.Logger
	tripAfter int
	cooldown  time.Duration
	probes    int

	mu        sync.Mutex
	state     State
	failures  int
	trippedAt time.Time

	probesSent int
	probesOK   int
}

// NewBreaker creates a closed breaker. The name labels log records.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		log:       slog.Default(),
		tripAfter: 5,
		cooldown:  30 * time.Second,
		probes:    3,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(slog.String("breaker", name))
	return b
}

// Do runs fn unless the breaker rejects the call. While open it returns
// [ErrOpen] without calling fn; in half-open only the probe budget gets
// through.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn()
	b.settle(probe, callErr)
	return callErr
}

// admit decides whether a call may proceed and whether it counts as a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.trippedAt) < b.cooldown {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probesSent = 0
		b.probesOK = 0
		b.log.Info("breaker half-open, probing")

	case HalfOpen:
		if b.probesSent >= b.probes {
			return false, ErrOpen
		}
	}

	if b.state == HalfOpen {
		b.probesSent++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if callErr == nil {
		if probe {
			b.probesOK++
			if b.probesOK >= b.probes {
				b.state = Closed
				b.failures = 0
				b.log.Info("breaker closed after successful probes")
			}
		} else {
			b.failures = 0
		}
		return
	}

	b.trippedAt = time.Now()
	if probe {
		// One failed probe trips the breaker again.
		b.state = Open
		b.failures = b.tripAfter
		b.log.Warn("breaker re-opened by failed probe")
		return
	}

	b.failures++
	if b.failures >= b.tripAfter {
		b.state = Open
		b.log.Warn("breaker opened", "consecutive_failures", b.failures)
	}
}

// State returns the breaker's state. An open breaker whose cooldown has
// elapsed reports [HalfOpen]; the transition itself happens on the next [Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.trippedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probesSent = 0
	b.probesOK = 0
}
