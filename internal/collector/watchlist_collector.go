package collector

import (
	"context"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// multiPoolBatchSize bounds how many pool ids go into one multi-pool
// request, matching the upstream's comma-separated-ids endpoint shape
// (GET .../pools/multi/{comma-ids}).
const multiPoolBatchSize = 30

// WatchlistCollector ensures every active watchlist entry's pool row
// exists and its metadata stays fresh, fetching in batches through the
// multi-pool endpoint rather than one request per pool. Minimal pool rows
// created by watchlist additions pick up their DEX and token references
// here. Collection key is watchlist_collector.
type WatchlistCollector struct {
	Network string
	Client  geckoterminal.API
	Store   storage.Store
}

func (c *WatchlistCollector) Key() string { return "watchlist_collector" }

func (c *WatchlistCollector) Validate(data any) ValidationResult {
	if pools, ok := data.([]geckoterminal.PoolDTO); ok {
		_, vr := validatePools(pools)
		return vr
	}
	return ValidationResult{}
}

func (c *WatchlistCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	entries, err := c.Store.ActiveWatchlistEntries(ctx)
	if err != nil {
		return res, err
	}
	if len(entries) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PoolID)
	}

	now := time.Now().UTC()
	for start := 0; start < len(ids); start += multiPoolBatchSize {
		end := start + multiPoolBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		pools, err := c.Client.MultiPools(ctx, c.Network, ids[start:end])
		if err != nil {
			return res, err
		}
		res.RecordsCollected += len(pools)

		pools, vr := validatePools(pools)
		res.RecordsRejected += vr.Rejected
		res.Errors = append(res.Errors, vr.Reasons...)

		var storedPools []storage.Pool
		var storedTokens []storage.Token
		for _, p := range pools {
			pool, tokens := poolTokensFromDTO(c.Network, p, now)
			storedPools = append(storedPools, pool)
			storedTokens = append(storedTokens, tokens...)
		}
		if len(storedTokens) > 0 {
			if err := c.Store.UpsertTokens(ctx, storedTokens); err != nil {
				return res, err
			}
		}
		if len(storedPools) > 0 {
			if err := c.Store.UpsertPools(ctx, storedPools); err != nil {
				return res, err
			}
			res.RecordsStored += len(storedPools)
		}
	}
	return res, nil
}
