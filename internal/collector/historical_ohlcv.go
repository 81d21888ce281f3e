package collector

import (
	"context"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// historicalPageLimit is the upstream's maximum candles per page.
const historicalPageLimit = 1000

// HistoricalOHLCVCollector closes previously-detected candle gaps by
// paging the upstream OHLCV endpoint backwards with before_timestamp.
// It drains the backfill queue fed by the OHLCV collector first; when the
// queue is empty it falls back to a full gap scan of the active watchlist
// over the configured span, so a fresh deployment converges without
// waiting for the recent-candles path to notice its history is missing.
// Collection key is historical_ohlcv_collector.
type HistoricalOHLCVCollector struct {
	Network        string
	Timeframes     []storage.Timeframe
	BackfillSpan   time.Duration // fallback scan span behind now
	BackfillMaxAge time.Duration // upstream retains nothing older than this
	Backfill       *BackfillQueue
	Client         geckoterminal.API
	Store          storage.Store
}

func (c *HistoricalOHLCVCollector) Key() string { return "historical_ohlcv_collector" }

func (c *HistoricalOHLCVCollector) Validate(data any) ValidationResult {
	if candles, ok := data.([]storage.Candle); ok {
		_, vr := validateCandles(candles)
		return vr
	}
	return ValidationResult{}
}

func (c *HistoricalOHLCVCollector) Collect(ctx context.Context) (Result, error) {
	var res Result

	jobs, err := c.pendingJobs(ctx)
	if err != nil {
		return res, err
	}
	res.setMeta("backfill_jobs", len(jobs))

	for _, job := range jobs {
		collected, stored, rejected, reasons, err := c.fillGap(ctx, job)
		res.RecordsCollected += collected
		res.RecordsStored += stored
		res.RecordsRejected += rejected
		res.Errors = append(res.Errors, reasons...)
		if err != nil {
			// Re-enqueue so the span is retried next pass rather than lost.
			if c.Backfill != nil {
				c.Backfill.Enqueue(job)
			}
			return res, err
		}
	}
	return res, nil
}

// pendingJobs drains the queue, falling back to a watchlist-wide gap scan
// when nothing was handed off since the last pass.
func (c *HistoricalOHLCVCollector) pendingJobs(ctx context.Context) ([]BackfillJob, error) {
	if c.Backfill != nil {
		if jobs := c.Backfill.Drain(0); len(jobs) > 0 {
			return jobs, nil
		}
	}

	entries, err := c.Store.ActiveWatchlistEntries(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Unix()
	var jobs []BackfillJob
	for _, e := range entries {
		for _, tf := range c.Timeframes {
			period := tf.PeriodSeconds()
			end := (now / period) * period
			start := alignUp(now-int64(c.BackfillSpan.Seconds()), period)
			if start >= end {
				continue
			}
			gaps, err := c.Store.CandleGaps(ctx, e.PoolID, tf, start, end)
			if err != nil {
				return nil, err
			}
			for _, g := range gaps {
				jobs = append(jobs, BackfillJob{
					PoolID:      e.PoolID,
					PoolAddress: e.NetworkAddress,
					Timeframe:   tf,
					Gap:         g,
				})
			}
		}
	}
	return jobs, nil
}

// fillGap pages backwards from the gap's end until the span is covered,
// the upstream runs out of pages, or the cursor falls past the retention
// horizon. Each page's in-gap rows are validated and dedupe-inserted.
func (c *HistoricalOHLCVCollector) fillGap(ctx context.Context, job BackfillJob) (collected, stored, rejected int, reasons []string, err error) {
	upstreamTF, aggregate := toUpstreamTimeframe(job.Timeframe)
	maxAge := c.BackfillMaxAge
	if maxAge <= 0 {
		maxAge = 6 * 30 * 24 * time.Hour
	}
	horizon := time.Now().UTC().Add(-maxAge).Unix()

	cursor := job.Gap.End
	for cursor > job.Gap.Start {
		if cursor < horizon {
			break
		}
		candles, err := c.Client.OHLCV(ctx, c.Network, job.PoolAddress, upstreamTF, geckoterminal.OHLCVParams{
			Aggregate:             aggregate,
			BeforeTimestamp:       cursor,
			Limit:                 historicalPageLimit,
			Currency:              "usd",
			Token:                 "base",
			IncludeEmptyIntervals: true,
		})
		if err != nil {
			return collected, stored, rejected, reasons, err
		}
		if len(candles) == 0 {
			break // no older data upstream
		}
		collected += len(candles)

		earliest := candles[0].TimestampUnix
		var inGap []geckoterminal.CandleDTO
		for _, dto := range candles {
			if dto.TimestampUnix < earliest {
				earliest = dto.TimestampUnix
			}
			if dto.TimestampUnix >= job.Gap.Start && dto.TimestampUnix < job.Gap.End {
				inGap = append(inGap, dto)
			}
		}

		if len(inGap) > 0 {
			rows, vr := validateCandles(candleRows(job.PoolID, job.Timeframe, inGap))
			rejected += vr.Rejected
			reasons = append(reasons, vr.Reasons...)
			n, err := c.Store.InsertCandles(ctx, rows)
			if err != nil {
				return collected, stored, rejected, reasons, err
			}
			stored += n
		}

		if earliest >= cursor {
			break // upstream did not advance; avoid spinning on a bad page
		}
		cursor = earliest
		if earliest < horizon {
			break // everything older is past retention
		}
	}
	return collected, stored, rejected, reasons, nil
}
