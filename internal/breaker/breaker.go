// Package breaker implements a three-state circuit breaker,
// generalizing the ad hoc per-node health flags
// (disabledUntil/minHeights/noBulkAPI) tracked by hand in earlier designs
// into one explicit Closed/Open/Half-Open state machine.
package breaker

import (
	"sync"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

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

// Config controls trip threshold and recovery timeout. OnStateChange, if
// set, is invoked (outside the breaker's lock) on every transition.
type Config struct {
	Threshold       int
	RecoveryTimeout time.Duration
	OnStateChange   func(name string, from, to State)
}

func DefaultConfig() Config {
	return Config{Threshold: 5, RecoveryTimeout: 300 * time.Second}
}

// Breaker guards one client or endpoint. It is safe for concurrent use.
type Breaker struct {
	name          string
	threshold     int
	recovery      time.Duration
	onStateChange func(name string, from, to State)

	mu               sync.Mutex
	state            State
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight bool
}

func New(name string, cfg Config) *Breaker {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	recovery := cfg.RecoveryTimeout
	if recovery <= 0 {
		recovery = 300 * time.Second
	}
	return &Breaker{
		name:          name,
		threshold:     threshold,
		recovery:      recovery,
		onStateChange: cfg.OnStateChange,
		state:         Closed,
	}
}

// Allow reports whether a call may proceed, transitioning Open to Half-Open
// once the recovery timeout has elapsed. Only one probe is admitted while
// Half-Open.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) >= b.recovery {
			notify := b.setState(HalfOpen)
			b.halfOpenInFlight = true
			b.mu.Unlock()
			notify()
			return true, nil
		}
		err := errs.New(errs.KindCircuitOpen, b.name, "allow", "circuit open").
			WithRetryAfter((b.recovery - time.Since(b.openedAt)).Seconds())
		b.mu.Unlock()
		return false, err
	case HalfOpen:
		if b.halfOpenInFlight {
			b.mu.Unlock()
			return false, errs.New(errs.KindCircuitOpen, b.name, "allow", "probe already in flight")
		}
		b.halfOpenInFlight = true
		b.mu.Unlock()
		return true, nil
	default:
		b.mu.Unlock()
		return true, nil
	}
}

// RecordResult updates breaker state after a call completes. Only kinds that
// CountsTowardBreaker() affect the consecutive-failure counter; a success
// resets it while Closed or Half-Open, and a stray success while Open is
// ignored.
func (b *Breaker) RecordResult(err error) {
	b.mu.Lock()

	var notify func()
	if err == nil {
		notify = b.onSuccess()
	} else {
		ce := errs.As(err)
		if !ce.Kind.CountsTowardBreaker() {
			b.mu.Unlock()
			return
		}
		notify = b.onFailure()
	}
	b.mu.Unlock()
	notify()
}

// setState records a transition and returns the deferred notification to
// run after the lock is released. A no-op func is returned for non-moves
// so callers can invoke it unconditionally.
func (b *Breaker) setState(to State) func() {
	from := b.state
	b.state = to
	if from == to || b.onStateChange == nil {
		return func() {}
	}
	name, cb := b.name, b.onStateChange
	return func() { cb(name, from, to) }
}

func (b *Breaker) onSuccess() func() {
	switch b.state {
	case HalfOpen:
		b.consecutiveFails = 0
		b.halfOpenInFlight = false
		return b.setState(Closed)
	case Open:
		// stray success while open (e.g. racing probe); ignore
		return func() {}
	default:
		b.consecutiveFails = 0
		return func() {}
	}
}

func (b *Breaker) onFailure() func() {
	switch b.state {
	case HalfOpen:
		b.openedAt = time.Now()
		b.halfOpenInFlight = false
		return b.setState(Open)
	default:
		b.consecutiveFails++
		if b.consecutiveFails >= b.threshold {
			b.openedAt = time.Now()
			return b.setState(Open)
		}
		return func() {}
	}
}

// State reports the current state, for health reporting.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn if the breaker allows it, recording the result.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	ok, err := b.Allow()
	if !ok {
		return zero, err
	}
	result, err := fn()
	b.RecordResult(err)
	return result, err
}
