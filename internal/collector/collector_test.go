package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

type fakeCollector struct {
	noValidation
	key string
	err error
	res Result
	n   int
}

func (f *fakeCollector) Key() string { return f.key }
func (f *fakeCollector) Collect(ctx context.Context) (Result, error) {
	f.n++
	return f.res, f.err
}

// metaStore is a storage.Store stub that only tracks collection_metadata and
// system_alerts, the two surfaces WithErrorHandling touches.
type metaStore struct {
	storage.Store
	meta   map[string]storage.CollectionMetadata
	alerts []storage.SystemAlert
}

func newMetaStore() *metaStore {
	return &metaStore{meta: map[string]storage.CollectionMetadata{}}
}

func (m *metaStore) GetCollectionMetadata(ctx context.Context, key string) (*storage.CollectionMetadata, error) {
	if cm, ok := m.meta[key]; ok {
		return &cm, nil
	}
	return nil, nil
}

func (m *metaStore) UpdateCollectionMetadata(ctx context.Context, cm storage.CollectionMetadata) error {
	m.meta[cm.CollectorType] = cm
	return nil
}

func (m *metaStore) InsertSystemAlert(ctx context.Context, a storage.SystemAlert) error {
	m.alerts = append(m.alerts, a)
	return nil
}

func TestWithErrorHandlingRecordsSuccess(t *testing.T) {
	store := newMetaStore()
	dispatcher := errs.NewDispatcher(nil)
	inner := &fakeCollector{key: "dex_monitoring_solana", res: Result{RecordsCollected: 4, RecordsStored: 4}}

	wrapped := Decorate(inner, store, dispatcher, nil, 0)
	res, err := wrapped.Collect(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "dex_monitoring_solana", res.CollectorKey)
	assert.Equal(t, 4, res.RecordsStored)
	assert.False(t, res.Timestamp.IsZero())

	meta := store.meta["dex_monitoring_solana"]
	assert.Equal(t, int64(1), meta.RunCount)
	assert.NotNil(t, meta.LastSuccess, "LastSuccess must be set on a successful run")
	assert.Equal(t, int64(0), meta.ErrorCount)
	assert.Equal(t, 4, meta.Metadata["records_stored"])
}

func TestWithErrorHandlingRecordsFailureAndDispatches(t *testing.T) {
	store := newMetaStore()
	var alertedKind errs.Kind
	dispatcher := errs.NewDispatcher(func(kind errs.Kind, component, message string, extra map[string]any) {
		alertedKind = kind
	})
	inner := &fakeCollector{key: "top_pools_solana", err: errs.New(errs.KindConfiguration, "upstream", "TopPools", "bad config")}

	wrapped := Decorate(inner, store, dispatcher, nil, 0)
	res, err := wrapped.Collect(context.Background())
	require.Error(t, err, "expected the inner error to propagate")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)

	meta := store.meta["top_pools_solana"]
	assert.Equalf(t, int64(1), meta.RunCount, "meta = %+v", meta)
	assert.Equalf(t, int64(1), meta.ErrorCount, "meta = %+v", meta)
	assert.Nil(t, meta.LastSuccess, "LastSuccess must stay nil on a failed run")
	assert.Equal(t, errs.KindConfiguration, alertedKind)
}

func TestWithErrorHandlingInvariantRunCountGESErrorCount(t *testing.T) {
	store := newMetaStore()
	dispatcher := errs.NewDispatcher(nil)
	inner := &fakeCollector{key: "trade_collector", err: errors.New("boom")}
	wrapped := Decorate(inner, store, dispatcher, nil, 0)

	for i := 0; i < 3; i++ {
		_, _ = wrapped.Collect(context.Background())
	}
	meta := store.meta["trade_collector"]
	assert.GreaterOrEqualf(t, meta.RunCount, meta.ErrorCount, "RunCount=%d < ErrorCount=%d, invariant violated", meta.RunCount, meta.ErrorCount)
	assert.Equal(t, int64(3), meta.RunCount)
	assert.Equal(t, int64(3), meta.ErrorCount)
}

func TestWithErrorHandlingPartialSuccess(t *testing.T) {
	store := newMetaStore()
	dispatcher := errs.NewDispatcher(nil)
	inner := &fakeCollector{
		key: "ohlcv_collector",
		res: Result{RecordsCollected: 10, RecordsStored: 7},
		err: errs.New(errs.KindParsing, "upstream", "OHLCV", "3 malformed rows"),
	}

	wrapped := Decorate(inner, store, dispatcher, nil, 0)
	res, err := wrapped.Collect(context.Background())
	require.NoError(t, err, "a batch with surviving rows is a partial success, not a failure")
	assert.True(t, res.Success)
	assert.Equal(t, true, res.Metadata["partial"])

	meta := store.meta["ohlcv_collector"]
	assert.Equal(t, int64(0), meta.ErrorCount)
	assert.NotNil(t, meta.LastSuccess)
}

func TestWithErrorHandlingRunTimeout(t *testing.T) {
	store := newMetaStore()
	dispatcher := errs.NewDispatcher(nil)
	inner := &slowCollector{key: "historical_ohlcv_collector"}

	wrapped := Decorate(inner, store, dispatcher, nil, 10*time.Millisecond)
	_, err := wrapped.Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	meta := store.meta["historical_ohlcv_collector"]
	assert.Equal(t, int64(1), meta.ErrorCount)
}

type slowCollector struct {
	noValidation
	key string
}

func (s *slowCollector) Key() string { return s.key }
func (s *slowCollector) Collect(ctx context.Context) (Result, error) {
	select {
	case <-time.After(time.Second):
		return Result{Success: true}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
