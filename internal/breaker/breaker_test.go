package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

func TestClosedAllowsAndIgnoresNonCountingFailures(t *testing.T) {
	b := New("test", Config{Threshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 10; i++ {
		b.RecordResult(errs.New(errs.KindValidation, "c", "op", "bad"))
	}
	assert.Equal(t, Closed, b.State(), "validation errors never count toward the breaker")
}

func TestTripsOpenAtThreshold(t *testing.T) {
	b := New("test", Config{Threshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordResult(errs.New(errs.KindServerError, "c", "op", "500"))
	}
	require.Equal(t, Closed, b.State())

	b.RecordResult(errs.New(errs.KindServerError, "c", "op", "500"))
	require.Equal(t, Open, b.State())

	ok, err := b.Allow()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestHalfOpenOnSuccessCloses(t *testing.T) {
	b := New("test", Config{Threshold: 1, RecoveryTimeout: time.Millisecond})
	b.RecordResult(errs.New(errs.KindConnection, "c", "op", "refused"))
	require.Equal(t, Open, b.State())

	time.Sleep(5 * time.Millisecond)
	ok, err := b.Allow()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, HalfOpen, b.State())

	b.RecordResult(nil)
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenOnFailureReopens(t *testing.T) {
	b := New("test", Config{Threshold: 1, RecoveryTimeout: time.Millisecond})
	b.RecordResult(errs.New(errs.KindConnection, "c", "op", "refused"))
	time.Sleep(5 * time.Millisecond)
	b.Allow()

	b.RecordResult(errs.New(errs.KindConnection, "c", "op", "refused again"))
	assert.Equal(t, Open, b.State())
}

func TestHalfOpenAdmitsOnlyOneProbe(t *testing.T) {
	b := New("test", Config{Threshold: 1, RecoveryTimeout: time.Millisecond})
	b.RecordResult(errs.New(errs.KindConnection, "c", "op", "refused"))
	time.Sleep(5 * time.Millisecond)

	ok1, _ := b.Allow()
	ok2, err2 := b.Allow()
	require.True(t, ok1, "first probe should be admitted")
	assert.False(t, ok2, "a second concurrent probe must be rejected while one is in flight")
	assert.Error(t, err2)
}

func TestOnStateChangeObservesTransitions(t *testing.T) {
	type move struct{ from, to State }
	var moves []move
	b := New("test", Config{
		Threshold:       2,
		RecoveryTimeout: time.Millisecond,
		OnStateChange:   func(name string, from, to State) { moves = append(moves, move{from, to}) },
	})

	b.RecordResult(errs.New(errs.KindServerError, "c", "op", "500"))
	b.RecordResult(errs.New(errs.KindServerError, "c", "op", "500"))
	require.Equal(t, []move{{Closed, Open}}, moves)

	time.Sleep(5 * time.Millisecond)
	ok, err := b.Allow()
	require.NoError(t, err)
	require.True(t, ok)
	b.RecordResult(nil)

	assert.Equal(t, []move{{Closed, Open}, {Open, HalfOpen}, {HalfOpen, Closed}}, moves)
}

func TestDoHelper(t *testing.T) {
	b := New("test", DefaultConfig())
	result, err := Do(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}
