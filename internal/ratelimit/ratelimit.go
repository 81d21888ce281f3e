// Package ratelimit implements two-tier request pacing:
// a per-endpoint minimum inter-request delay and a global
// rolling-window cap, plus a monthly-budget soft-warning counter. The global
// tier follows a newLimiterFromEnv style built on golang.org/x/time/rate;
// the per-endpoint map and the monthly counter generalize a userCounter
// sliding-window pattern from per-user to per-endpoint keys.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls the limiter's tiers. MonthlyBudget of 0 disables the
// soft-warning counter.
type Config struct {
	GlobalRPM        float64
	PerEndpointDelay time.Duration
	MonthlyBudget    int
	WarnFraction     float64 // default 0.8
}

func DefaultConfig() Config {
	return Config{
		GlobalRPM:        30,
		PerEndpointDelay: time.Second,
		MonthlyBudget:    10000,
		WarnFraction:     0.8,
	}
}

// Limiter is process-global and shared across all concurrent collectors.
type Limiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	endpoints map[string]*endpointState

	defaultEndpointDelay time.Duration
	monthlyBudget        int
	warnFraction         float64
	monthStart           time.Time
	monthlyCalls         int
	warned               bool
}

type endpointState struct {
	mu       sync.Mutex
	minDelay time.Duration
	nextOK   time.Time
}

// New constructs a Limiter. cfg.GlobalRPM <= 0 disables the global tier.
func New(cfg Config) *Limiter {
	var global *rate.Limiter
	if cfg.GlobalRPM > 0 {
		global = rate.NewLimiter(rate.Limit(cfg.GlobalRPM/60.0), int(cfg.GlobalRPM))
	}
	warn := cfg.WarnFraction
	if warn <= 0 {
		warn = 0.8
	}
	endpointDelay := cfg.PerEndpointDelay
	if endpointDelay <= 0 {
		endpointDelay = time.Second
	}
	return &Limiter{
		global:               global,
		endpoints:            make(map[string]*endpointState),
		defaultEndpointDelay: endpointDelay,
		monthlyBudget:        cfg.MonthlyBudget,
		warnFraction:         warn,
		monthStart:           time.Now(),
	}
}

// Wait blocks until both the global and the named endpoint's tier admit the
// call. It never holds a mutex across the actual suspension on the global
// limiter's internal reservation channel.
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	ep := l.endpointState(endpoint)

	ep.mu.Lock()
	wait := time.Until(ep.nextOK)
	ep.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return err
		}
	}

	ep.mu.Lock()
	delay := ep.minDelay
	if delay <= 0 {
		delay = l.defaultEndpointDelay
	}
	ep.nextOK = time.Now().Add(delay)
	ep.mu.Unlock()

	l.recordCall()
	return nil
}

// NotifyRateLimited is called when the upstream returns 429. When
// retryAfter > 0 the endpoint's next admission time is extended to at least
// that far out, honoring the header verbatim.
func (l *Limiter) NotifyRateLimited(endpoint string, retryAfter time.Duration) {
	ep := l.endpointState(endpoint)
	ep.mu.Lock()
	defer ep.mu.Unlock()
	candidate := time.Now().Add(retryAfter)
	if candidate.After(ep.nextOK) {
		ep.nextOK = candidate
	}
}

func (l *Limiter) endpointState(endpoint string) *endpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	ep, ok := l.endpoints[endpoint]
	if !ok {
		ep = &endpointState{}
		l.endpoints[endpoint] = ep
	}
	return ep
}

// recordCall advances the monthly counter and logs a soft warning once the
// configured fraction of the budget is consumed within the current month.
func (l *Limiter) recordCall() {
	if l.monthlyBudget <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Year() != l.monthStart.Year() || now.Month() != l.monthStart.Month() {
		l.monthStart = now
		l.monthlyCalls = 0
		l.warned = false
	}
	l.monthlyCalls++
	if !l.warned && float64(l.monthlyCalls) >= float64(l.monthlyBudget)*l.warnFraction {
		l.warned = true
		log.Printf("[ratelimit] monthly budget at %d/%d calls (%.0f%%)",
			l.monthlyCalls, l.monthlyBudget, 100*float64(l.monthlyCalls)/float64(l.monthlyBudget))
	}
}

// MonthlyCalls reports the current month's call count, for health reporting.
func (l *Limiter) MonthlyCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.monthlyCalls
}
