package collector

import (
	"context"
	"sync"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// TradeCollector fetches recent trades for every active watchlist pool,
// filtering to the configured volume floor. The upstream caps the
// endpoint at 300 rows over the last 24 hours, so one request per pool
// per pass is the whole fetch. Collection key is trade_collector.
type TradeCollector struct {
	Network      string
	MinVolumeUSD float64
	Concurrency  int
	Client       geckoterminal.API
	Store        storage.Store
}

func (c *TradeCollector) Key() string { return "trade_collector" }

func (c *TradeCollector) Validate(data any) ValidationResult {
	if trades, ok := data.([]storage.Trade); ok {
		_, vr := validateTrades(trades, c.MinVolumeUSD)
		return vr
	}
	return ValidationResult{}
}

func (c *TradeCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	entries, err := c.Store.ActiveWatchlistEntries(ctx)
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	collectErrs := forEachEntry(ctx, c.Concurrency, entries, func(ctx context.Context, e storage.WatchlistEntry) error {
		trades, err := c.Client.Trades(ctx, c.Network, e.NetworkAddress, geckoterminal.TradesParams{
			MinVolumeUSD: c.MinVolumeUSD,
		})
		if err != nil {
			return err
		}

		rows := make([]storage.Trade, 0, len(trades))
		for _, t := range trades {
			rows = append(rows, tradeRow(e.PoolID, t))
		}
		// The min-volume filter is part of the request, but the floor is
		// enforced again here so a permissive upstream cannot leak
		// under-floor rows into storage.
		rows, vr := validateTrades(rows, c.MinVolumeUSD)

		var stored int
		if len(rows) > 0 {
			stored, err = c.Store.InsertTrades(ctx, rows)
		}

		mu.Lock()
		res.RecordsCollected += len(trades)
		res.RecordsStored += stored
		res.RecordsRejected += vr.Rejected
		res.Errors = append(res.Errors, vr.Reasons...)
		mu.Unlock()
		return err
	})
	if len(collectErrs) > 0 {
		return res, collectErrs[0]
	}
	return res, nil
}

func tradeRow(poolID string, t geckoterminal.TradeDTO) storage.Trade {
	ts, _ := time.Parse(time.RFC3339, t.BlockTimestamp)
	side := storage.Side(t.Side)
	return storage.Trade{
		ID:              t.ID,
		PoolID:          poolID,
		BlockNumber:     t.BlockNumber,
		TxHash:          t.TxHash,
		FromTokenAmount: t.FromTokenAmount,
		ToTokenAmount:   t.ToTokenAmount,
		PriceUSD:        t.PriceUSD,
		VolumeUSD:       t.VolumeUSD,
		Side:            side,
		BlockTimestamp:  ts,
	}
}
