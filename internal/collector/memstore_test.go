package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// memStore is a complete in-memory storage.Store used by the end-to-end
// collector tests. It honors the same contracts as the SQL-backed stores:
// dedup on the candle/trade uniqueness keys, non-null-preserving pool and
// token upserts, watchlist uniqueness on pool_id, and grid-based gap
// enumeration.
type memStore struct {
	mu        sync.Mutex
	dexes     map[string]storage.Dex
	pools     map[string]storage.Pool
	tokens    map[string]storage.Token
	candles   map[string]storage.Candle
	trades    map[string]storage.Trade
	watchlist map[string]storage.WatchlistEntry
	snapshots []storage.NewPoolSnapshot
	meta      map[string]storage.CollectionMetadata
	alerts    []storage.SystemAlert
}

func newMemStore() *memStore {
	return &memStore{
		dexes:     map[string]storage.Dex{},
		pools:     map[string]storage.Pool{},
		tokens:    map[string]storage.Token{},
		candles:   map[string]storage.Candle{},
		trades:    map[string]storage.Trade{},
		watchlist: map[string]storage.WatchlistEntry{},
		meta:      map[string]storage.CollectionMetadata{},
	}
}

func candleKey(poolID string, tf storage.Timeframe, ts int64) string {
	return fmt.Sprintf("%s|%s|%d", poolID, tf, ts)
}

func (m *memStore) Close() error { return nil }

func (m *memStore) UpsertDex(ctx context.Context, d storage.Dex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dexes[d.ID]; !ok {
		m.dexes[d.ID] = d
	}
	return nil
}

func (m *memStore) UpsertPools(ctx context.Context, pools []storage.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pools {
		if cur, ok := m.pools[p.ID]; ok {
			if p.Name == "" {
				p.Name = cur.Name
			}
			if p.DexID == nil {
				p.DexID = cur.DexID
			}
			if p.BaseTokenID == nil {
				p.BaseTokenID = cur.BaseTokenID
			}
			if p.QuoteTokenID == nil {
				p.QuoteTokenID = cur.QuoteTokenID
			}
			p.CreatedAt = cur.CreatedAt
		}
		m.pools[p.ID] = p
	}
	return nil
}

func (m *memStore) UpsertTokens(ctx context.Context, tokens []storage.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		if cur, ok := m.tokens[t.ID]; ok {
			if t.Name == "" {
				t.Name = cur.Name
			}
			if t.Symbol == "" {
				t.Symbol = cur.Symbol
			}
			if t.PriceUSD == nil {
				t.PriceUSD = cur.PriceUSD
			}
		}
		m.tokens[t.ID] = t
	}
	return nil
}

func (m *memStore) CreateMinimalPool(ctx context.Context, poolID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[poolID]; !ok {
		m.pools[poolID] = storage.Pool{ID: poolID, Address: address}
	}
	return nil
}

func (m *memStore) InsertCandles(ctx context.Context, candles []storage.Candle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, c := range candles {
		k := candleKey(c.PoolID, c.Timeframe, c.TimestampUnix)
		if _, ok := m.candles[k]; ok {
			continue
		}
		m.candles[k] = c
		inserted++
	}
	return inserted, nil
}

func (m *memStore) CandleGaps(ctx context.Context, poolID string, tf storage.Timeframe, start, end int64) ([]storage.Gap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	period := tf.PeriodSeconds()
	var gaps []storage.Gap
	var gapStart int64 = -1
	for ts := start; ts < end; ts += period {
		_, ok := m.candles[candleKey(poolID, tf, ts)]
		if ok {
			if gapStart != -1 {
				gaps = append(gaps, storage.Gap{Start: gapStart, End: ts})
				gapStart = -1
			}
			continue
		}
		if gapStart == -1 {
			gapStart = ts
		}
	}
	if gapStart != -1 {
		gaps = append(gaps, storage.Gap{Start: gapStart, End: end})
	}
	return gaps, nil
}

func (m *memStore) CandlesInRange(ctx context.Context, poolID string, tf storage.Timeframe, start, end int64) ([]storage.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Candle
	for _, c := range m.candles {
		if c.PoolID == poolID && c.Timeframe == tf && c.TimestampUnix >= start && c.TimestampUnix < end {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampUnix < out[j].TimestampUnix })
	return out, nil
}

func (m *memStore) InsertTrades(ctx context.Context, trades []storage.Trade) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, t := range trades {
		if _, ok := m.trades[t.ID]; ok {
			continue
		}
		m.trades[t.ID] = t
		inserted++
	}
	return inserted, nil
}

func (m *memStore) UpsertWatchlistEntry(ctx context.Context, e storage.WatchlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.watchlist[e.PoolID]; ok {
		e.CreatedAt = cur.CreatedAt
	}
	m.watchlist[e.PoolID] = e
	return nil
}

func (m *memStore) GetWatchlistEntry(ctx context.Context, poolID string) (*storage.WatchlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.watchlist[poolID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *memStore) ActiveWatchlistEntries(ctx context.Context) ([]storage.WatchlistEntry, error) {
	return m.entries(func(e storage.WatchlistEntry) bool { return e.IsActive })
}

func (m *memStore) AllWatchlistEntries(ctx context.Context) ([]storage.WatchlistEntry, error) {
	return m.entries(func(storage.WatchlistEntry) bool { return true })
}

func (m *memStore) entries(keep func(storage.WatchlistEntry) bool) ([]storage.WatchlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.WatchlistEntry
	for _, e := range m.watchlist {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out, nil
}

func (m *memStore) InsertNewPoolSnapshot(ctx context.Context, s storage.NewPoolSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memStore) RecentSnapshots(ctx context.Context, poolID string, limit int) ([]storage.NewPoolSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.NewPoolSnapshot
	for _, s := range m.snapshots {
		if s.PoolID == poolID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectedAt.After(out[j].CollectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetCollectionMetadata(ctx context.Context, collectorType string) (*storage.CollectionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cm, ok := m.meta[collectorType]; ok {
		return &cm, nil
	}
	return nil, nil
}

func (m *memStore) UpdateCollectionMetadata(ctx context.Context, cm storage.CollectionMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.meta[cm.CollectorType]; ok && cur.LastRun.After(cm.LastRun) {
		cm.LastRun = cur.LastRun
	}
	m.meta[cm.CollectorType] = cm
	return nil
}

func (m *memStore) InsertSystemAlert(ctx context.Context, a storage.SystemAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.alerts) + 1)
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memStore) PoolExists(ctx context.Context, poolID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pools[poolID]
	return ok, nil
}
