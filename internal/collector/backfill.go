package collector

import (
	"fmt"
	"sync"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// BackfillJob names one detected candle gap for the historical collector
// to close: the pool, the timeframe, and the missing [Start, End) span.
type BackfillJob struct {
	PoolID      string
	PoolAddress string
	Timeframe   storage.Timeframe
	Gap         storage.Gap
}

func (j BackfillJob) key() string {
	return fmt.Sprintf("%s|%s|%d|%d", j.PoolID, j.Timeframe, j.Gap.Start, j.Gap.End)
}

// BackfillQueue is the in-memory hand-off between the OHLCV collector
// (which detects gaps) and the historical collector (which pages them
// closed). Jobs are deduplicated while pending so repeated detection of
// the same gap between historical passes enqueues once.
type BackfillQueue struct {
	mu      sync.Mutex
	jobs    []BackfillJob
	pending map[string]bool
}

func NewBackfillQueue() *BackfillQueue {
	return &BackfillQueue{pending: make(map[string]bool)}
}

// Enqueue adds job unless an identical gap is already pending.
func (q *BackfillQueue) Enqueue(job BackfillJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := job.key()
	if q.pending[k] {
		return
	}
	q.pending[k] = true
	q.jobs = append(q.jobs, job)
}

// Drain removes and returns up to max pending jobs in enqueue order.
// max <= 0 drains everything.
func (q *BackfillQueue) Drain(max int) []BackfillJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.jobs)
	if max > 0 && max < n {
		n = max
	}
	out := q.jobs[:n]
	q.jobs = q.jobs[n:]
	for _, j := range out {
		delete(q.pending, j.key())
	}
	return out
}

// Len reports the pending job count.
func (q *BackfillQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
