// Package health implements the per-collector health tracking and
// alert-emission rules: growing error counts without an
// intervening success, circuit breakers opening, excessive rate-limit
// retries, and high validation-rejection rates all raise a system alert.
// Generalizes a userCounter sliding-window pattern from a single
// rate-limit counter into a per-key rolling set of health counters.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// counters is the rolling health state for one collector key.
type counters struct {
	consecutiveErrorsSinceSuccess int
	rateLimitRetries              int
	validationRejected            int
	validationTotal               int
	breakerOpenedAt               *time.Time
}

// Tracker accumulates per-collector-key counters and raises alerts into
// storage when a threshold rule trips.
type Tracker struct {
	mu    sync.Mutex
	state map[string]*counters

	// ErrorStreakThreshold is the consecutive-error-without-success count
	// that raises an alert (this mirrors an "error_count
	// growth without success" rule).
	ErrorStreakThreshold int
	// RateLimitRetryThreshold is the consecutive rate-limit-triggered
	// retries that raise an alert.
	RateLimitRetryThreshold int
	// ValidationRejectFraction is the fraction of a batch's rows that must
	// fail validation to raise an alert.
	ValidationRejectFraction float64

	Store storage.Store
}

// New builds a Tracker with conservative default thresholds.
func New(store storage.Store) *Tracker {
	return &Tracker{
		state:                    make(map[string]*counters),
		ErrorStreakThreshold:     5,
		RateLimitRetryThreshold:  3,
		ValidationRejectFraction: 0.10,
		Store:                    store,
	}
}

func (t *Tracker) counterFor(key string) *counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.state[key]
	if !ok {
		c = &counters{}
		t.state[key] = c
	}
	return c
}

// RecordResult updates the consecutive-error streak for key and raises an
// alert if it crosses ErrorStreakThreshold.
func (t *Tracker) RecordResult(ctx context.Context, key string, err error) {
	c := t.counterFor(key)

	t.mu.Lock()
	if err != nil {
		c.consecutiveErrorsSinceSuccess++
	} else {
		c.consecutiveErrorsSinceSuccess = 0
	}
	streak := c.consecutiveErrorsSinceSuccess
	t.mu.Unlock()

	if streak >= t.ErrorStreakThreshold {
		t.alert(ctx, key, storage.AlertError, fmt.Sprintf("%d consecutive collection failures without a success", streak))
	}
}

// RecordRateLimit notes one rate-limit-triggered retry for key.
func (t *Tracker) RecordRateLimit(ctx context.Context, key string) {
	c := t.counterFor(key)

	t.mu.Lock()
	c.rateLimitRetries++
	n := c.rateLimitRetries
	t.mu.Unlock()

	if n >= t.RateLimitRetryThreshold {
		t.alert(ctx, key, storage.AlertWarning, fmt.Sprintf("%d consecutive rate-limit retries", n))
	}
}

// RecordRateLimitRecovered resets key's rate-limit retry streak.
func (t *Tracker) RecordRateLimitRecovered(key string) {
	c := t.counterFor(key)
	t.mu.Lock()
	c.rateLimitRetries = 0
	t.mu.Unlock()
}

// RecordBreakerOpen raises a critical alert the moment a breaker trips open.
func (t *Tracker) RecordBreakerOpen(ctx context.Context, key string) {
	c := t.counterFor(key)
	now := time.Now().UTC()

	t.mu.Lock()
	already := c.breakerOpenedAt != nil
	c.breakerOpenedAt = &now
	t.mu.Unlock()

	if !already {
		t.alert(ctx, key, storage.AlertCritical, "circuit breaker opened")
	}
}

// RecordBreakerClosed clears the open-breaker marker for key.
func (t *Tracker) RecordBreakerClosed(key string) {
	c := t.counterFor(key)
	t.mu.Lock()
	c.breakerOpenedAt = nil
	t.mu.Unlock()
}

// RecordValidationBatch notes one batch's rejection rate and alerts if it
// exceeds ValidationRejectFraction.
func (t *Tracker) RecordValidationBatch(ctx context.Context, key string, rejected, total int) {
	if total == 0 {
		return
	}
	c := t.counterFor(key)
	t.mu.Lock()
	c.validationRejected += rejected
	c.validationTotal += total
	t.mu.Unlock()
	fraction := float64(rejected) / float64(total)

	if fraction > t.ValidationRejectFraction {
		t.alert(ctx, key, storage.AlertWarning, fmt.Sprintf("validation rejected %.1f%% of the batch", fraction*100))
	}
}

func (t *Tracker) alert(ctx context.Context, key string, level storage.AlertLevel, message string) {
	if t.Store == nil {
		return
	}
	_ = t.Store.InsertSystemAlert(ctx, storage.SystemAlert{
		Level:         level,
		CollectorType: key,
		Message:       message,
		Timestamp:     time.Now().UTC(),
	})
}
