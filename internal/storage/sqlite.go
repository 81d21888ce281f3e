package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/breaker"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/config"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

// SQLiteStore is the embedded single-file storage path, for operators who
// want a single binary with no external database. It follows a WAL +
// busy_timeout DSN and single-writer connection pool shape; the ordered
// batch queue, flusher goroutine, and breaker guard funnel writes through
// a single serialized path so concurrent collectors never contend for the
// one writable connection.
type SQLiteStore struct {
	db *sql.DB

	queue    chan batchJob
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	writeBreaker *breaker.Breaker
}

type batchJob struct {
	fn   func(*sql.Tx) error
	done chan error
}

// NewSQLiteStore opens path with WAL journaling and the configured
// busy_timeout, starts the single flusher goroutine, and applies the
// schema at cfg.SchemaPath when one is set. There is no built-in default
// schema: with an empty SchemaPath no schema is applied.
func NewSQLiteStore(ctx context.Context, cfg config.StorageConfig) (*SQLiteStore, error) {
	busyMS := cfg.BusyTimeout.Milliseconds()
	if busyMS <= 0 {
		busyMS = 5000
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d", cfg.DSN, busyMS)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if cfg.SchemaPath != "" {
		content, err := os.ReadFile(cfg.SchemaPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("read sqlite schema: %w", err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}

	batchSize := cfg.BatchMaxSize
	if batchSize <= 0 {
		batchSize = 200
	}

	s := &SQLiteStore{
		db:           db,
		queue:        make(chan batchJob, batchSize),
		stopCh:       make(chan struct{}),
		writeBreaker: breaker.New("sqlite-writer", breaker.Config{Threshold: 5, RecoveryTimeout: 30 * time.Second}),
	}
	s.wg.Add(1)
	go s.flusher(cfg.BatchMaxWait)
	return s, nil
}

// flusher is the dedicated single-writer goroutine: it drains the ordered
// batch queue and executes each job in its own transaction, guarded by a
// circuit breaker so prolonged lock contention trips rather than cascades.
func (s *SQLiteStore) flusher(maxWait time.Duration) {
	defer s.wg.Done()
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	for {
		select {
		case job := <-s.queue:
			job.done <- s.runJob(job)
		case <-s.stopCh:
			// drain remaining queued jobs before exiting
			for {
				select {
				case job := <-s.queue:
					job.done <- s.runJob(job)
				default:
					return
				}
			}
		}
	}
}

// writeLockRetries bounds the busy/locked retries one batch job gets
// before its error surfaces to the caller.
const writeLockRetries = 3

func (s *SQLiteStore) runJob(job batchJob) error {
	ok, err := s.writeBreaker.Allow()
	if !ok {
		log.Printf("[storage] sqlite writer circuit open, rejecting batch job")
		return err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = classifyDBError("batch_write", s.runTx(job.fn))
		if lastErr == nil {
			break
		}
		if errs.As(lastErr).Kind != errs.KindDatabaseLock || attempt >= writeLockRetries {
			break
		}
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	s.writeBreaker.RecordResult(lastErr)
	return lastErr
}

func (s *SQLiteStore) runTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// enqueue submits fn to the flusher and blocks for its result, propagating
// ctx cancellation as a suspension point.
func (s *SQLiteStore) enqueue(ctx context.Context, fn func(*sql.Tx) error) error {
	job := batchJob{fn: fn, done: make(chan error, 1)}
	select {
	case s.queue <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteStore) UpsertDex(ctx context.Context, d Dex) error {
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO dexes (id, name, network_id) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING`, d.ID, d.Name, d.NetworkID)
		return err
	})
}

func (s *SQLiteStore) UpsertPools(ctx context.Context, pools []Pool) error {
	if len(pools) == 0 {
		return nil
	}
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		for _, p := range pools {
			_, err := tx.Exec(`
				INSERT INTO pools (id, address, name, dex_id, base_token_id, quote_token_id, reserve_usd, last_updated)
				VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(id) DO UPDATE SET
					address        = excluded.address,
					name           = CASE WHEN excluded.name = '' THEN pools.name ELSE excluded.name END,
					dex_id         = COALESCE(excluded.dex_id, pools.dex_id),
					base_token_id  = COALESCE(excluded.base_token_id, pools.base_token_id),
					quote_token_id = COALESCE(excluded.quote_token_id, pools.quote_token_id),
					reserve_usd    = excluded.reserve_usd,
					last_updated   = CURRENT_TIMESTAMP`,
				p.ID, p.Address, p.Name, p.DexID, p.BaseTokenID, p.QuoteTokenID, p.ReserveUSD)
			if err != nil {
				return fmt.Errorf("upsert pool %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertTokens(ctx context.Context, tokens []Token) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		for _, t := range tokens {
			_, err := tx.Exec(`
				INSERT INTO tokens (id, address, name, symbol, decimals, network, price_usd, last_updated)
				VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(id) DO UPDATE SET
					name         = CASE WHEN excluded.name = '' THEN tokens.name ELSE excluded.name END,
					symbol       = CASE WHEN excluded.symbol = '' THEN tokens.symbol ELSE excluded.symbol END,
					decimals     = excluded.decimals,
					price_usd    = COALESCE(excluded.price_usd, tokens.price_usd),
					last_updated = CURRENT_TIMESTAMP`,
				t.ID, t.Address, t.Name, t.Symbol, t.Decimals, t.Network, t.PriceUSD)
			if err != nil {
				return fmt.Errorf("upsert token %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) CreateMinimalPool(ctx context.Context, poolID, address string) error {
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO pools (id, address) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`, poolID, address)
		return err
	})
}

func (s *SQLiteStore) InsertCandles(ctx context.Context, candles []Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.enqueue(ctx, func(tx *sql.Tx) error {
		for _, c := range candles {
			res, err := tx.Exec(`
				INSERT INTO ohlcv_candles (pool_id, timeframe, timestamp_unix, open, high, low, close, volume_usd, datetime)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(pool_id, timeframe, timestamp_unix) DO NOTHING`,
				c.PoolID, string(c.Timeframe), c.TimestampUnix, c.Open, c.High, c.Low, c.Close, c.VolumeUSD, c.Datetime)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	return inserted, err
}

func (s *SQLiteStore) CandleGaps(ctx context.Context, poolID string, tf Timeframe, start, end int64) ([]Gap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp_unix FROM ohlcv_candles
		WHERE pool_id = ? AND timeframe = ? AND timestamp_unix >= ? AND timestamp_unix < ?
		ORDER BY timestamp_unix ASC`, poolID, string(tf), start, end)
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

func (s *SQLiteStore) CandlesInRange(ctx context.Context, poolID string, tf Timeframe, start, end int64) ([]Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, timeframe, timestamp_unix, open, high, low, close, volume_usd, datetime
		FROM ohlcv_candles
		WHERE pool_id = ? AND timeframe = ? AND timestamp_unix >= ? AND timestamp_unix < ?
		ORDER BY timestamp_unix ASC`, poolID, string(tf), start, end)
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

func (s *SQLiteStore) InsertTrades(ctx context.Context, trades []Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.enqueue(ctx, func(tx *sql.Tx) error {
		for _, t := range trades {
			res, err := tx.Exec(`
				INSERT INTO trades (id, pool_id, block_number, tx_hash, from_token_amount, to_token_amount, price_usd, volume_usd, side, block_timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING`,
				t.ID, t.PoolID, t.BlockNumber, t.TxHash, t.FromTokenAmount, t.ToTokenAmount, t.PriceUSD, t.VolumeUSD, string(t.Side), t.BlockTimestamp)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	return inserted, err
}

func (s *SQLiteStore) UpsertWatchlistEntry(ctx context.Context, e WatchlistEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO watchlist_entries (pool_id, token_symbol, token_name, network_address, is_active, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(pool_id) DO UPDATE SET
				token_symbol    = excluded.token_symbol,
				token_name      = excluded.token_name,
				network_address = excluded.network_address,
				is_active       = excluded.is_active,
				updated_at      = CURRENT_TIMESTAMP,
				metadata        = excluded.metadata`,
			e.PoolID, e.TokenSymbol, e.TokenName, e.NetworkAddress, e.IsActive, string(meta))
		return err
	})
}

func (s *SQLiteStore) GetWatchlistEntry(ctx context.Context, poolID string) (*WatchlistEntry, error) {
	var e WatchlistEntry
	var meta string
	var isActive int
	err := s.db.QueryRowContext(ctx, `
		SELECT pool_id, token_symbol, token_name, network_address, is_active, created_at, updated_at, COALESCE(metadata, '')
		FROM watchlist_entries WHERE pool_id = ?`, poolID).
		Scan(&e.PoolID, &e.TokenSymbol, &e.TokenName, &e.NetworkAddress, &isActive, &e.CreatedAt, &e.UpdatedAt, &meta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.IsActive = isActive != 0
	if meta != "" {
		_ = json.Unmarshal([]byte(meta), &e.Metadata)
	}
	return &e, nil
}

func (s *SQLiteStore) ActiveWatchlistEntries(ctx context.Context) ([]WatchlistEntry, error) {
	return s.queryWatchlist(ctx, "WHERE is_active = 1")
}

func (s *SQLiteStore) AllWatchlistEntries(ctx context.Context) ([]WatchlistEntry, error) {
	return s.queryWatchlist(ctx, "")
}

func (s *SQLiteStore) queryWatchlist(ctx context.Context, where string) ([]WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT pool_id, token_symbol, token_name, network_address, is_active, created_at, updated_at, COALESCE(metadata, '')
		FROM watchlist_entries %s ORDER BY pool_id`, where))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		var meta string
		var isActive int
		if err := rows.Scan(&e.PoolID, &e.TokenSymbol, &e.TokenName, &e.NetworkAddress, &isActive, &e.CreatedAt, &e.UpdatedAt, &meta); err != nil {
			return nil, err
		}
		e.IsActive = isActive != 0
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertNewPoolSnapshot(ctx context.Context, sn NewPoolSnapshot) error {
	tags, err := json.Marshal(sn.TrendTags)
	if err != nil {
		return err
	}
	collectedAt := sn.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO new_pool_snapshots (pool_id, collected_at, open, high, low, close, volume_usd, liquidity_usd, tx_count, signal_score, trend_tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sn.PoolID, collectedAt, sn.Open, sn.High, sn.Low, sn.Close, sn.VolumeUSD, sn.LiquidityUSD, sn.TxCount, sn.SignalScore, string(tags))
		return err
	})
}

func (s *SQLiteStore) RecentSnapshots(ctx context.Context, poolID string, limit int) ([]NewPoolSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, collected_at, open, high, low, close, volume_usd, liquidity_usd, tx_count, signal_score, COALESCE(trend_tags, '')
		FROM new_pool_snapshots WHERE pool_id = ? ORDER BY collected_at DESC LIMIT ?`, poolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NewPoolSnapshot
	for rows.Next() {
		var sn NewPoolSnapshot
		var tags string
		if err := rows.Scan(&sn.PoolID, &sn.CollectedAt, &sn.Open, &sn.High, &sn.Low, &sn.Close, &sn.VolumeUSD, &sn.LiquidityUSD, &sn.TxCount, &sn.SignalScore, &tags); err != nil {
			return nil, err
		}
		if tags != "" {
			_ = json.Unmarshal([]byte(tags), &sn.TrendTags)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCollectionMetadata(ctx context.Context, collectorType string) (*CollectionMetadata, error) {
	var m CollectionMetadata
	var lastRun, lastSuccess sql.NullTime
	var metaJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT collector_type, last_run, last_success, run_count, error_count, COALESCE(last_error, ''), COALESCE(metadata_json, '')
		FROM collection_metadata WHERE collector_type = ?`, collectorType).
		Scan(&m.CollectorType, &lastRun, &lastSuccess, &m.RunCount, &m.ErrorCount, &m.LastError, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		m.LastRun = lastRun.Time
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		m.LastSuccess = &t
	}
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
	}
	return &m, nil
}

func (s *SQLiteStore) UpdateCollectionMetadata(ctx context.Context, m CollectionMetadata) error {
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		existing := tx.QueryRow(`SELECT last_run FROM collection_metadata WHERE collector_type = ?`, m.CollectorType)
		var prevRun sql.NullTime
		_ = existing.Scan(&prevRun)
		lastRun := m.LastRun
		if prevRun.Valid && prevRun.Time.After(lastRun) {
			lastRun = prevRun.Time
		}
		_, err := tx.Exec(`
			INSERT INTO collection_metadata (collector_type, last_run, last_success, run_count, error_count, last_error, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(collector_type) DO UPDATE SET
				last_run      = excluded.last_run,
				last_success  = COALESCE(excluded.last_success, collection_metadata.last_success),
				run_count     = excluded.run_count,
				error_count   = excluded.error_count,
				last_error    = excluded.last_error,
				metadata_json = excluded.metadata_json`,
			m.CollectorType, lastRun, m.LastSuccess, m.RunCount, m.ErrorCount, m.LastError, string(metaJSON))
		return err
	})
}

func (s *SQLiteStore) InsertSystemAlert(ctx context.Context, a SystemAlert) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return s.enqueue(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO system_alerts (level, collector_type, message, timestamp, acknowledged, resolved, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(a.Level), a.CollectorType, a.Message, ts, a.Acknowledged, a.Resolved, string(meta))
		return err
	})
}

func (s *SQLiteStore) PoolExists(ctx context.Context, poolID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pools WHERE id = ?)`, poolID).Scan(&exists)
	return exists != 0, err
}
