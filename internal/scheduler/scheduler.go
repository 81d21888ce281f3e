// Package scheduler runs a registry of collectors on independent
// intervals, enforcing a no-overlap-per-collection-key invariant:
// a collector whose previous run hasn't finished is
// either skipped (default) or queued (opt-in), never run concurrently with
// itself. A single driver loop wakes at the earliest next-due time and
// dispatches due collectors onto a bounded worker pool.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/collector"
)

// Runner is the capability the scheduler depends on; it is satisfied by
// collector.WithErrorHandling.
type Runner interface {
	Key() string
	Collect(ctx context.Context) (collector.Result, error)
}

// entry pairs one collector with its run interval and due time.
type entry struct {
	runner   Runner
	interval time.Duration
	nextDue  time.Time
}

// Scheduler owns a fixed set of (collector, interval) registrations and
// dispatches each when due, through one driver loop and a shared worker
// pool.
type Scheduler struct {
	entries      []*entry
	workers      int
	queueOverlap bool

	mu       sync.Mutex
	inFlight map[string]bool
	queued   map[string]int // pending queued runs per key, when queueOverlap is set

	sem chan struct{}
}

// New builds a Scheduler. workers bounds total concurrent collector runs
// across all keys; queueOverlap selects the overlap policy:
// skip is the default, queue is opt-in via config.QueueOverlappingRuns.
func New(workers int, queueOverlap bool) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		workers:      workers,
		queueOverlap: queueOverlap,
		inFlight:     make(map[string]bool),
		queued:       make(map[string]int),
		sem:          make(chan struct{}, workers),
	}
}

// Register adds a collector to run every interval. Must be called before Run.
func (s *Scheduler) Register(r Runner, interval time.Duration) {
	s.entries = append(s.entries, &entry{runner: r, interval: interval})
}

// Run drives the registry until ctx is cancelled, then waits up to
// gracePeriod for in-flight runs to finish before returning. In-flight
// runs past the grace period are abandoned and logged; their goroutines
// unwind on their own cancelled contexts.
func (s *Scheduler) Run(ctx context.Context, gracePeriod time.Duration) {
	if len(s.entries) == 0 {
		<-ctx.Done()
		return
	}

	now := time.Now()
	for _, e := range s.entries {
		e.nextDue = now.Add(e.interval)
	}

	var wg sync.WaitGroup
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		next := s.entries[0].nextDue
		for _, e := range s.entries[1:] {
			if e.nextDue.Before(next) {
				next = e.nextDue
			}
		}
		timer.Reset(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.drain(&wg, gracePeriod)
			return
		case <-timer.C:
		}

		now = time.Now()
		for _, e := range s.entries {
			if e.nextDue.After(now) {
				continue
			}
			e.nextDue = e.nextDue.Add(e.interval)
			if e.nextDue.Before(now) {
				// Missed ticks collapse into one; no burst catch-up.
				e.nextDue = now.Add(e.interval)
			}
			s.dispatch(ctx, &wg, e)
		}
	}
}

func (s *Scheduler) drain(wg *sync.WaitGroup, gracePeriod time.Duration) {
	log.Printf("[scheduler] shutdown requested, waiting up to %s for in-flight runs", gracePeriod)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("[scheduler] all collectors stopped cleanly")
	case <-time.After(gracePeriod):
		log.Printf("[scheduler] grace period elapsed, returning with collectors still in flight")
	}
}

// dispatch hands one due entry to a worker: skip if already in flight
// (unless queueOverlap is set, in which case the run executes immediately
// after the current one finishes).
func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup, e *entry) {
	key := e.runner.Key()

	s.mu.Lock()
	if s.inFlight[key] {
		if s.queueOverlap {
			s.queued[key]++
			log.Printf("[scheduler] %s still running, queuing overlap (pending=%d)", key, s.queued[key])
		} else {
			log.Printf("[scheduler] %s still running, skipping this tick", key)
		}
		s.mu.Unlock()
		return
	}
	s.inFlight[key] = true
	s.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runOnce(ctx, e)
	}()
}

func (s *Scheduler) runOnce(ctx context.Context, e *entry) {
	key := e.runner.Key()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.mu.Lock()
		s.inFlight[key] = false
		s.mu.Unlock()
		return
	}
	defer func() { <-s.sem }()

	res, err := e.runner.Collect(ctx)
	if err != nil {
		log.Printf("[scheduler] %s run failed after %s: %v", key, res.Duration, err)
	} else {
		log.Printf("[scheduler] %s collected=%d stored=%d rejected=%d in %s",
			key, res.RecordsCollected, res.RecordsStored, res.RecordsRejected, res.Duration)
	}

	s.mu.Lock()
	s.inFlight[key] = false
	runAgain := s.queueOverlap && s.queued[key] > 0 && ctx.Err() == nil
	if runAgain {
		s.queued[key]--
		s.inFlight[key] = true
	}
	s.mu.Unlock()

	if runAgain {
		s.runOnce(ctx, e)
	}
}
