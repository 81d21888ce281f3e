package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/config"
)

// PostgresStore wraps a pgxpool.Pool. Construction, env-tuned pool settings
// and per-connection runtime params follow the same NewRepository shape
// used elsewhere in this codebase.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore opens a pool per cfg and ensures the schema at
// cfg.SchemaPath exists (mirrors Repository.Migrate).
func NewPostgresStore(ctx context.Context, cfg config.StorageConfig) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pc.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = map[string]string{}
	}
	stmtTimeout := cfg.StatementTimeout
	if stmtTimeout <= 0 {
		stmtTimeout = getEnvDuration("GT_DB_STATEMENT_TIMEOUT_MS", 5*time.Minute)
	}
	pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(stmtTimeout.Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	s := &PostgresStore{db: pool}
	if cfg.SchemaPath != "" {
		if err := s.migrate(ctx, cfg.SchemaPath); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func (s *PostgresStore) migrate(ctx context.Context, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.db.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) UpsertDex(ctx context.Context, d Dex) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO dexes (id, name, network_id, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.Name, d.NetworkID, nullTime(d.CreatedAt))
	return err
}

func (s *PostgresStore) UpsertPools(ctx context.Context, pools []Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pools (id, address, name, dex_id, base_token_id, quote_token_id, reserve_usd, created_at, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (id) DO UPDATE SET
				address        = EXCLUDED.address,
				name           = CASE WHEN EXCLUDED.name = '' THEN pools.name ELSE EXCLUDED.name END,
				dex_id         = COALESCE(EXCLUDED.dex_id, pools.dex_id),
				base_token_id  = COALESCE(EXCLUDED.base_token_id, pools.base_token_id),
				quote_token_id = COALESCE(EXCLUDED.quote_token_id, pools.quote_token_id),
				reserve_usd    = EXCLUDED.reserve_usd,
				last_updated   = now()`,
			p.ID, p.Address, p.Name, p.DexID, p.BaseTokenID, p.QuoteTokenID, p.ReserveUSD)
	}
	return execBatch(ctx, s.db, batch, len(pools))
}

func (s *PostgresStore) UpsertTokens(ctx context.Context, tokens []Token) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(`
			INSERT INTO tokens (id, address, name, symbol, decimals, network, price_usd, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (id) DO UPDATE SET
				name         = CASE WHEN EXCLUDED.name = '' THEN tokens.name ELSE EXCLUDED.name END,
				symbol       = CASE WHEN EXCLUDED.symbol = '' THEN tokens.symbol ELSE EXCLUDED.symbol END,
				decimals     = EXCLUDED.decimals,
				price_usd    = COALESCE(EXCLUDED.price_usd, tokens.price_usd),
				last_updated = now()`,
			t.ID, t.Address, t.Name, t.Symbol, t.Decimals, t.Network, t.PriceUSD)
	}
	return execBatch(ctx, s.db, batch, len(tokens))
}

func (s *PostgresStore) CreateMinimalPool(ctx context.Context, poolID, address string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pools (id, address, created_at, last_updated)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (id) DO NOTHING`,
		poolID, address)
	return err
}

func (s *PostgresStore) InsertCandles(ctx context.Context, candles []Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(`
			INSERT INTO ohlcv_candles (pool_id, timeframe, timestamp_unix, open, high, low, close, volume_usd, datetime)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (pool_id, timeframe, timestamp_unix) DO NOTHING`,
			c.PoolID, string(c.Timeframe), c.TimestampUnix, c.Open, c.High, c.Low, c.Close, c.VolumeUSD, c.Datetime)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	inserted := 0
	for i := 0; i < len(candles); i++ {
		tag, err := br.Exec()
		if err != nil {
			return inserted, classifyDBError("insert_candles", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) CandleGaps(ctx context.Context, poolID string, tf Timeframe, start, end int64) ([]Gap, error) {
	rows, err := s.db.Query(ctx, `
		SELECT timestamp_unix FROM ohlcv_candles
		WHERE pool_id = $1 AND timeframe = $2 AND timestamp_unix >= $3 AND timestamp_unix < $4
		ORDER BY timestamp_unix ASC`,
		poolID, string(tf), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var have []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		have = append(have, ts)
	}
	return computeGaps(have, tf.PeriodSeconds(), start, end), rows.Err()
}

func (s *PostgresStore) CandlesInRange(ctx context.Context, poolID string, tf Timeframe, start, end int64) ([]Candle, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pool_id, timeframe, timestamp_unix, open, high, low, close, volume_usd, datetime
		FROM ohlcv_candles
		WHERE pool_id = $1 AND timeframe = $2 AND timestamp_unix >= $3 AND timestamp_unix < $4
		ORDER BY timestamp_unix ASC`,
		poolID, string(tf), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candle
	for rows.Next() {
		var c Candle
		var tfStr string
		if err := rows.Scan(&c.PoolID, &tfStr, &c.TimestampUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.VolumeUSD, &c.Datetime); err != nil {
			return nil, err
		}
		c.Timeframe = Timeframe(tfStr)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertTrades(ctx context.Context, trades []Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO trades (id, pool_id, block_number, tx_hash, from_token_amount, to_token_amount, price_usd, volume_usd, side, block_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.PoolID, t.BlockNumber, t.TxHash, t.FromTokenAmount, t.ToTokenAmount, t.PriceUSD, t.VolumeUSD, string(t.Side), t.BlockTimestamp)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	inserted := 0
	for i := 0; i < len(trades); i++ {
		tag, err := br.Exec()
		if err != nil {
			return inserted, classifyDBError("insert_trades", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresStore) UpsertWatchlistEntry(ctx context.Context, e WatchlistEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO watchlist_entries (pool_id, token_symbol, token_name, network_address, is_active, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, now(), now(), $6)
		ON CONFLICT (pool_id) DO UPDATE SET
			token_symbol    = EXCLUDED.token_symbol,
			token_name      = EXCLUDED.token_name,
			network_address = EXCLUDED.network_address,
			is_active       = EXCLUDED.is_active,
			updated_at      = now(),
			metadata        = EXCLUDED.metadata`,
		e.PoolID, e.TokenSymbol, e.TokenName, e.NetworkAddress, e.IsActive, meta)
	return err
}

func (s *PostgresStore) GetWatchlistEntry(ctx context.Context, poolID string) (*WatchlistEntry, error) {
	var e WatchlistEntry
	var meta []byte
	err := s.db.QueryRow(ctx, `
		SELECT pool_id, token_symbol, token_name, network_address, is_active, created_at, updated_at, metadata
		FROM watchlist_entries WHERE pool_id = $1`, poolID).
		Scan(&e.PoolID, &e.TokenSymbol, &e.TokenName, &e.NetworkAddress, &e.IsActive, &e.CreatedAt, &e.UpdatedAt, &meta)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &e.Metadata)
	}
	return &e, nil
}

func (s *PostgresStore) ActiveWatchlistEntries(ctx context.Context) ([]WatchlistEntry, error) {
	return s.queryWatchlist(ctx, "WHERE is_active = true")
}

func (s *PostgresStore) AllWatchlistEntries(ctx context.Context) ([]WatchlistEntry, error) {
	return s.queryWatchlist(ctx, "")
}

func (s *PostgresStore) queryWatchlist(ctx context.Context, where string) ([]WatchlistEntry, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT pool_id, token_symbol, token_name, network_address, is_active, created_at, updated_at, metadata
		FROM watchlist_entries %s ORDER BY pool_id`, where))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		var meta []byte
		if err := rows.Scan(&e.PoolID, &e.TokenSymbol, &e.TokenName, &e.NetworkAddress, &e.IsActive, &e.CreatedAt, &e.UpdatedAt, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertNewPoolSnapshot(ctx context.Context, sn NewPoolSnapshot) error {
	tags, err := json.Marshal(sn.TrendTags)
	if err != nil {
		return err
	}
	collectedAt := sn.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO new_pool_snapshots (pool_id, collected_at, open, high, low, close, volume_usd, liquidity_usd, tx_count, signal_score, trend_tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sn.PoolID, collectedAt, sn.Open, sn.High, sn.Low, sn.Close, sn.VolumeUSD, sn.LiquidityUSD, sn.TxCount, sn.SignalScore, tags)
	return err
}

func (s *PostgresStore) RecentSnapshots(ctx context.Context, poolID string, limit int) ([]NewPoolSnapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pool_id, collected_at, open, high, low, close, volume_usd, liquidity_usd, tx_count, signal_score, trend_tags
		FROM new_pool_snapshots WHERE pool_id = $1 ORDER BY collected_at DESC LIMIT $2`, poolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NewPoolSnapshot
	for rows.Next() {
		var sn NewPoolSnapshot
		var tags []byte
		if err := rows.Scan(&sn.PoolID, &sn.CollectedAt, &sn.Open, &sn.High, &sn.Low, &sn.Close, &sn.VolumeUSD, &sn.LiquidityUSD, &sn.TxCount, &sn.SignalScore, &tags); err != nil {
			return nil, err
		}
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &sn.TrendTags)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCollectionMetadata(ctx context.Context, collectorType string) (*CollectionMetadata, error) {
	var m CollectionMetadata
	var lastRun, lastSuccess *time.Time
	var metaJSON []byte
	err := s.db.QueryRow(ctx, `
		SELECT collector_type, last_run, last_success, run_count, error_count, COALESCE(last_error, ''), metadata_json
		FROM collection_metadata WHERE collector_type = $1`, collectorType).
		Scan(&m.CollectorType, &lastRun, &lastSuccess, &m.RunCount, &m.ErrorCount, &m.LastError, &metaJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastRun != nil {
		m.LastRun = *lastRun
	}
	m.LastSuccess = lastSuccess
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &m.Metadata)
	}
	return &m, nil
}

func (s *PostgresStore) UpdateCollectionMetadata(ctx context.Context, m CollectionMetadata) error {
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO collection_metadata (collector_type, last_run, last_success, run_count, error_count, last_error, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (collector_type) DO UPDATE SET
			last_run     = CASE WHEN EXCLUDED.last_run > collection_metadata.last_run OR collection_metadata.last_run IS NULL
			                    THEN EXCLUDED.last_run ELSE collection_metadata.last_run END,
			last_success = COALESCE(EXCLUDED.last_success, collection_metadata.last_success),
			run_count    = EXCLUDED.run_count,
			error_count  = EXCLUDED.error_count,
			last_error   = EXCLUDED.last_error,
			metadata_json = EXCLUDED.metadata_json`,
		m.CollectorType, nullTime(m.LastRun), m.LastSuccess, m.RunCount, m.ErrorCount, m.LastError, metaJSON)
	return err
}

func (s *PostgresStore) InsertSystemAlert(ctx context.Context, a SystemAlert) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO system_alerts (level, collector_type, message, timestamp, acknowledged, resolved, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(a.Level), a.CollectorType, a.Message, ts, a.Acknowledged, a.Resolved, meta)
	return err
}

func (s *PostgresStore) PoolExists(ctx context.Context, poolID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pools WHERE id = $1)`, poolID).Scan(&exists)
	return exists, err
}

func execBatch(ctx context.Context, db *pgxpool.Pool, batch *pgx.Batch, n int) error {
	br := db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return classifyDBError("batch_exec", err)
		}
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// computeGaps enumerates missing grid slots in [start, end) given the
// sorted list of timestamps already present, for the gap-query
// contract. Shared by both storage backends.
func computeGaps(have []int64, period, start, end int64) []Gap {
	if period <= 0 {
		return nil
	}
	present := make(map[int64]bool, len(have))
	for _, ts := range have {
		present[ts] = true
	}
	var gaps []Gap
	var gapStart int64 = -1
	for ts := start; ts < end; ts += period {
		if present[ts] {
			if gapStart != -1 {
				gaps = append(gaps, Gap{Start: gapStart, End: ts})
				gapStart = -1
			}
			continue
		}
		if gapStart == -1 {
			gapStart = ts
		}
	}
	if gapStart != -1 {
		gaps = append(gaps, Gap{Start: gapStart, End: end})
	}
	return gaps
}
