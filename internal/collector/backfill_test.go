package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

func TestBackfillQueueDeduplicatesPendingJobs(t *testing.T) {
	q := NewBackfillQueue()
	job := BackfillJob{PoolID: "p", PoolAddress: "a", Timeframe: storage.Timeframe1h, Gap: storage.Gap{Start: 0, End: 3600}}

	q.Enqueue(job)
	q.Enqueue(job) // same gap detected twice between historical passes
	assert.Equal(t, 1, q.Len())

	other := job
	other.Gap.End = 7200
	q.Enqueue(other)
	assert.Equal(t, 2, q.Len())
}

func TestBackfillQueueDrainOrderAndReenqueue(t *testing.T) {
	q := NewBackfillQueue()
	a := BackfillJob{PoolID: "p1", Timeframe: storage.Timeframe1h, Gap: storage.Gap{Start: 0, End: 3600}}
	b := BackfillJob{PoolID: "p2", Timeframe: storage.Timeframe1h, Gap: storage.Gap{Start: 0, End: 3600}}
	q.Enqueue(a)
	q.Enqueue(b)

	jobs := q.Drain(1)
	require.Len(t, jobs, 1)
	assert.Equal(t, "p1", jobs[0].PoolID)
	assert.Equal(t, 1, q.Len())

	// A drained job may be re-enqueued after a failed fill.
	q.Enqueue(a)
	assert.Equal(t, 2, q.Len())

	rest := q.Drain(0)
	require.Len(t, rest, 2)
	assert.Equal(t, 0, q.Len())
}
