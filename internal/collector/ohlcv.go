package collector

import (
	"context"
	"sync"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// recentCandleLimit bounds one recent-candles fetch per pool/timeframe.
const recentCandleLimit = 500

// OHLCVCollector fetches recent candles for every active watchlist pool
// across the configured timeframes and deduplicates them into storage.
// After each pool's inserts it scans a bounded lookback window for missing
// grid slots; young-enough gaps are handed to the backfill queue for the
// historical collector to close. Collection key is ohlcv_collector.
type OHLCVCollector struct {
	Network        string
	Timeframes     []storage.Timeframe
	LookbackWindow time.Duration // gap-scan span behind now
	BackfillMaxAge time.Duration // gaps older than this are not backfilled
	Concurrency    int
	Backfill       *BackfillQueue // nil disables backfill hand-off
	Client         geckoterminal.API
	Store          storage.Store
}

func (c *OHLCVCollector) Key() string { return "ohlcv_collector" }

func (c *OHLCVCollector) Validate(data any) ValidationResult {
	if candles, ok := data.([]storage.Candle); ok {
		_, vr := validateCandles(candles)
		return vr
	}
	return ValidationResult{}
}

func (c *OHLCVCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	entries, err := c.Store.ActiveWatchlistEntries(ctx)
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	collectErrs := forEachEntry(ctx, c.Concurrency, entries, func(ctx context.Context, e storage.WatchlistEntry) error {
		collected, stored, rejected, reasons, err := c.collectPool(ctx, e)
		mu.Lock()
		res.RecordsCollected += collected
		res.RecordsStored += stored
		res.RecordsRejected += rejected
		res.Errors = append(res.Errors, reasons...)
		mu.Unlock()
		return err
	})
	if len(collectErrs) > 0 {
		return res, collectErrs[0]
	}
	return res, nil
}

// collectPool runs one pool's fetch-validate-insert-gap-scan sequence
// across every configured timeframe.
func (c *OHLCVCollector) collectPool(ctx context.Context, e storage.WatchlistEntry) (collected, stored, rejected int, reasons []string, err error) {
	for _, tf := range c.Timeframes {
		upstreamTF, aggregate := toUpstreamTimeframe(tf)
		candles, err := c.Client.OHLCV(ctx, c.Network, e.NetworkAddress, upstreamTF, geckoterminal.OHLCVParams{
			Aggregate:             aggregate,
			Limit:                 recentCandleLimit,
			Currency:              "usd",
			Token:                 "base",
			IncludeEmptyIntervals: true,
		})
		if err != nil {
			return collected, stored, rejected, reasons, err
		}
		collected += len(candles)
		if len(candles) == 0 {
			continue
		}

		rows := candleRows(e.PoolID, tf, candles)
		rows, vr := validateCandles(rows)
		rejected += vr.Rejected
		reasons = append(reasons, vr.Reasons...)
		if len(rows) == 0 {
			continue
		}

		n, err := c.Store.InsertCandles(ctx, rows)
		if err != nil {
			return collected, stored, rejected, reasons, err
		}
		stored += n

		if err := c.scanGaps(ctx, e, tf); err != nil {
			return collected, stored, rejected, reasons, err
		}
	}
	return collected, stored, rejected, reasons, nil
}

// scanGaps enumerates missing grid slots over the lookback window and
// enqueues any gap still young enough to be retrievable upstream.
func (c *OHLCVCollector) scanGaps(ctx context.Context, e storage.WatchlistEntry, tf storage.Timeframe) error {
	if c.Backfill == nil || c.LookbackWindow <= 0 {
		return nil
	}
	period := tf.PeriodSeconds()
	now := time.Now().UTC().Unix()
	end := (now / period) * period // the in-progress candle is not a gap
	start := alignUp(now-int64(c.LookbackWindow.Seconds()), period)
	if start >= end {
		return nil
	}

	gaps, err := c.Store.CandleGaps(ctx, e.PoolID, tf, start, end)
	if err != nil {
		return err
	}
	maxAge := c.BackfillMaxAge
	if maxAge <= 0 {
		maxAge = 6 * 30 * 24 * time.Hour
	}
	oldest := now - int64(maxAge.Seconds())
	for _, g := range gaps {
		if g.Start < oldest {
			continue
		}
		c.Backfill.Enqueue(BackfillJob{
			PoolID:      e.PoolID,
			PoolAddress: e.NetworkAddress,
			Timeframe:   tf,
			Gap:         g,
		})
	}
	return nil
}

func candleRows(poolID string, tf storage.Timeframe, candles []geckoterminal.CandleDTO) []storage.Candle {
	rows := make([]storage.Candle, 0, len(candles))
	for _, dto := range candles {
		rows = append(rows, storage.Candle{
			PoolID:        poolID,
			Timeframe:     tf,
			TimestampUnix: dto.TimestampUnix,
			Open:          dto.Open,
			High:          dto.High,
			Low:           dto.Low,
			Close:         dto.Close,
			VolumeUSD:     dto.VolumeUSD,
			Datetime:      time.Unix(dto.TimestampUnix, 0).UTC(),
		})
	}
	return rows
}

func alignUp(ts, period int64) int64 {
	if period <= 0 {
		return ts
	}
	if rem := ts % period; rem != 0 {
		return ts + period - rem
	}
	return ts
}

// toUpstreamTimeframe maps our closed timeframe set onto the upstream's
// coarser {day, hour, minute} selector plus an aggregate multiplier,
// following an aggregate-over-base-unit scheme.
func toUpstreamTimeframe(tf storage.Timeframe) (geckoterminal.Timeframe, int) {
	switch tf {
	case storage.Timeframe1m:
		return geckoterminal.TimeframeMinute, 1
	case storage.Timeframe5m:
		return geckoterminal.TimeframeMinute, 5
	case storage.Timeframe15m:
		return geckoterminal.TimeframeMinute, 15
	case storage.Timeframe1h:
		return geckoterminal.TimeframeHour, 1
	case storage.Timeframe4h:
		return geckoterminal.TimeframeHour, 4
	case storage.Timeframe12h:
		return geckoterminal.TimeframeHour, 12
	case storage.Timeframe1d:
		return geckoterminal.TimeframeDay, 1
	default:
		return geckoterminal.TimeframeHour, 1
	}
}
