// Package retry implements the backoff engine wrapping any operation with a
// policy of (max_retries, base_delay, multiplier, jitter), generalizing the
// attempt-indexed exponential backoff the upstream Flow client hand-rolled
// twice (withRetry / withRetryPinned) into a single reusable helper, with a
// jitter term added on top.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

// Policy controls attempt count and delay shape. Delay for attempt n
// (1-indexed) is base_delay * multiplier^(n-1) * (1 + U[0,1)*jitter).
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	Jitter     float64
	MaxDelay   time.Duration
}

// DefaultPolicy holds a conservative set of defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.25,
		MaxDelay:   30 * time.Second,
	}
}

// Delay returns the wait duration before attempt n (1-indexed).
func (p Policy) Delay(n int) time.Duration {
	mult := 1.0
	for i := 0; i < n-1; i++ {
		mult *= p.Multiplier
	}
	d := float64(p.BaseDelay) * mult
	if p.Jitter > 0 {
		d *= 1 + rand.Float64()*p.Jitter
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do invokes fn, retrying per policy when the returned error classifies as
// transient (errs.Kind.Transient). A rate-limit error's Retry-After value, if
// present, overrides the computed delay for that attempt, honored verbatim.
// Do never retries a non-transient error.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxRetries+1; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		ce := errs.As(err)
		if !ce.Kind.Transient() {
			return err
		}
		if attempt > policy.MaxRetries {
			return err
		}

		wait := policy.Delay(attempt)
		if ce.Kind == errs.KindRateLimit && ce.RetryAfter > 0 {
			wait = time.Duration(ce.RetryAfter * float64(time.Second))
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
