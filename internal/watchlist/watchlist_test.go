package watchlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadCSVParsesRows(t *testing.T) {
	path := writeCSV(t, "pool_id,symbol,name,network_address,is_active\n"+
		"p1,ABC,ABC Token,0xabc,true\n"+
		"p2,XYZ,XYZ Token,0xdef,false\n")

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].PoolID)
	assert.True(t, rows[0].IsActive)
	assert.Equal(t, "p2", rows[1].PoolID)
	assert.False(t, rows[1].IsActive)
}

func TestReadCSVRejectsMissingColumn(t *testing.T) {
	path := writeCSV(t, "pool_id,symbol,name,is_active\np1,ABC,ABC Token,true\n")
	_, err := ReadCSV(path)
	assert.Error(t, err)
}

// fakeStore is a minimal in-memory storage.Store sufficient to exercise
// Reconciler without a real database.
type fakeStore struct {
	pools     map[string]bool
	watchlist map[string]storage.WatchlistEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{pools: map[string]bool{}, watchlist: map[string]storage.WatchlistEntry{}}
}

func (f *fakeStore) UpsertDex(ctx context.Context, d storage.Dex) error { return nil }
func (f *fakeStore) UpsertPools(ctx context.Context, pools []storage.Pool) error {
	for _, p := range pools {
		f.pools[p.ID] = true
	}
	return nil
}
func (f *fakeStore) UpsertTokens(ctx context.Context, tokens []storage.Token) error { return nil }
func (f *fakeStore) CreateMinimalPool(ctx context.Context, poolID, address string) error {
	f.pools[poolID] = true
	return nil
}
func (f *fakeStore) InsertCandles(ctx context.Context, candles []storage.Candle) (int, error) {
	return len(candles), nil
}
func (f *fakeStore) CandleGaps(ctx context.Context, poolID string, tf storage.Timeframe, start, end int64) ([]storage.Gap, error) {
	return nil, nil
}
func (f *fakeStore) CandlesInRange(ctx context.Context, poolID string, tf storage.Timeframe, start, end int64) ([]storage.Candle, error) {
	return nil, nil
}
func (f *fakeStore) InsertTrades(ctx context.Context, trades []storage.Trade) (int, error) {
	return len(trades), nil
}
func (f *fakeStore) UpsertWatchlistEntry(ctx context.Context, e storage.WatchlistEntry) error {
	f.watchlist[e.PoolID] = e
	return nil
}
func (f *fakeStore) GetWatchlistEntry(ctx context.Context, poolID string) (*storage.WatchlistEntry, error) {
	e, ok := f.watchlist[poolID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}
func (f *fakeStore) ActiveWatchlistEntries(ctx context.Context) ([]storage.WatchlistEntry, error) {
	var out []storage.WatchlistEntry
	for _, e := range f.watchlist {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeStore) AllWatchlistEntries(ctx context.Context) ([]storage.WatchlistEntry, error) {
	var out []storage.WatchlistEntry
	for _, e := range f.watchlist {
		out = append(out, e)
	}
	return out, nil
}
func (f *fakeStore) InsertNewPoolSnapshot(ctx context.Context, s storage.NewPoolSnapshot) error {
	return nil
}
func (f *fakeStore) RecentSnapshots(ctx context.Context, poolID string, limit int) ([]storage.NewPoolSnapshot, error) {
	return nil, nil
}
func (f *fakeStore) GetCollectionMetadata(ctx context.Context, collectorType string) (*storage.CollectionMetadata, error) {
	return nil, nil
}
func (f *fakeStore) UpdateCollectionMetadata(ctx context.Context, m storage.CollectionMetadata) error {
	return nil
}
func (f *fakeStore) InsertSystemAlert(ctx context.Context, a storage.SystemAlert) error { return nil }
func (f *fakeStore) PoolExists(ctx context.Context, poolID string) (bool, error) {
	return f.pools[poolID], nil
}
func (f *fakeStore) Close() error { return nil }

func TestReconcileCreatesMinimalPoolForUnknownID(t *testing.T) {
	store := newFakeStore()
	r := &Reconciler{Store: store}

	touched, err := r.Reconcile(context.Background(), []Row{
		{PoolID: "new-pool", Symbol: "NEW", Name: "New Token", NetworkAddress: "0x1", IsActive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, touched)
	assert.True(t, store.pools["new-pool"], "expected minimal pool to be created for unknown pool id")
	assert.True(t, store.watchlist["new-pool"].IsActive)
}

func TestReconcilePreservesCreatedAt(t *testing.T) {
	store := newFakeStore()
	original := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.pools["p1"] = true
	store.watchlist["p1"] = storage.WatchlistEntry{PoolID: "p1", IsActive: true, CreatedAt: original}

	r := &Reconciler{Store: store}
	_, err := r.Reconcile(context.Background(), []Row{
		{PoolID: "p1", Symbol: "ABC", Name: "ABC Token", NetworkAddress: "0xabc", IsActive: true},
	})
	require.NoError(t, err)
	assert.True(t, store.watchlist["p1"].CreatedAt.Equal(original))
}

func TestReconcileKeepsAutoAddedEntriesAbsentFromCSV(t *testing.T) {
	store := newFakeStore()
	store.pools["auto"] = true
	store.watchlist["auto"] = storage.WatchlistEntry{
		PoolID:   "auto",
		IsActive: true,
		Metadata: map[string]any{"auto_added": true, "signal_score": 81.5},
	}

	r := &Reconciler{Store: store}
	_, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)

	entry := store.watchlist["auto"]
	assert.True(t, entry.IsActive, "auto-promoted entries are DB-only and must survive CSV reconciliation")
}

func TestWriteCSVRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	entries := []storage.WatchlistEntry{
		{PoolID: "p1", TokenSymbol: "ABC", TokenName: "ABC Token", NetworkAddress: "0xabc", IsActive: true},
		{PoolID: "p2", TokenSymbol: "XYZ", TokenName: "XYZ Token", NetworkAddress: "0xdef", IsActive: false},
	}
	require.NoError(t, WriteCSV(path, entries))

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "p1", rows[0].PoolID)
	assert.True(t, rows[0].IsActive)
	assert.Equal(t, "XYZ Token", rows[1].Name)
	assert.False(t, rows[1].IsActive)
}

func TestReconcileDeactivatesEntriesAbsentFromCSV(t *testing.T) {
	store := newFakeStore()
	store.pools["stale"] = true
	store.watchlist["stale"] = storage.WatchlistEntry{PoolID: "stale", IsActive: true}

	r := &Reconciler{Store: store}
	touched, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	entry, ok := store.watchlist["stale"]
	require.True(t, ok, "entry must still exist in storage, only deactivated")
	assert.False(t, entry.IsActive)
}
