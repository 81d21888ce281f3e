package storage

import "context"

// Store is the portable storage abstraction: every
// operation is expressed here once, with two concrete implementations
// (Postgres and SQLite) behind it. No collector or higher-level component
// ever issues SQL directly.
type Store interface {
	// UpsertDex inserts a DEX row if absent; DEXes are never deleted.
	UpsertDex(ctx context.Context, d Dex) error

	// UpsertPools upserts by ID, never overwriting a non-null field with
	// null.
	UpsertPools(ctx context.Context, pools []Pool) error

	// UpsertTokens upserts by ID under the same non-null-preserving rule.
	UpsertTokens(ctx context.Context, tokens []Token) error

	// CreateMinimalPool inserts a pool row with only ID and Address
	// populated, for a watchlist addition referencing an unknown pool.
	CreateMinimalPool(ctx context.Context, poolID, address string) error

	// InsertCandles performs a deduplicating batch insert keyed on
	// (pool_id, timeframe, timestamp_unix); conflicting rows are dropped,
	// not raised. Returns the count actually inserted.
	InsertCandles(ctx context.Context, candles []Candle) (inserted int, err error)

	// CandleGaps returns missing (gap_start, gap_end) intervals in
	// [start, end) implied by timeframe's period.
	CandleGaps(ctx context.Context, poolID string, tf Timeframe, start, end int64) ([]Gap, error)

	// CandlesInRange returns persisted candles sorted by timestamp.
	CandlesInRange(ctx context.Context, poolID string, tf Timeframe, start, end int64) ([]Candle, error)

	// InsertTrades performs a deduplicating batch insert keyed on ID.
	InsertTrades(ctx context.Context, trades []Trade) (inserted int, err error)

	// UpsertWatchlistEntry enforces uniqueness on PoolID.
	UpsertWatchlistEntry(ctx context.Context, e WatchlistEntry) error
	GetWatchlistEntry(ctx context.Context, poolID string) (*WatchlistEntry, error)
	ActiveWatchlistEntries(ctx context.Context) ([]WatchlistEntry, error)
	AllWatchlistEntries(ctx context.Context) ([]WatchlistEntry, error)

	// InsertNewPoolSnapshot appends one row; not deduplicated by content.
	InsertNewPoolSnapshot(ctx context.Context, s NewPoolSnapshot) error
	RecentSnapshots(ctx context.Context, poolID string, limit int) ([]NewPoolSnapshot, error)

	// GetCollectionMetadata/UpdateCollectionMetadata implement the atomic,
	// last-wins-on-last_run read/update contract.
	GetCollectionMetadata(ctx context.Context, collectorType string) (*CollectionMetadata, error)
	UpdateCollectionMetadata(ctx context.Context, m CollectionMetadata) error

	// InsertSystemAlert appends an alert row.
	InsertSystemAlert(ctx context.Context, a SystemAlert) error

	// PoolExists reports whether a pool row is present, used by the
	// watchlist invariant check.
	PoolExists(ctx context.Context, poolID string) (bool, error)

	Close() error
}
