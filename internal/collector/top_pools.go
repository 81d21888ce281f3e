package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// TopPoolsCollector refreshes the top-pools-by-liquidity listing for one
// network: one request per configured DEX target, or a single network-wide
// request when no DEX targets are configured. A pool returned by more than
// one target (e.g. listed on both configured DEXes) upserts once per
// target, with last_updated reflecting whichever fetch in this pass ran
// last. Collection key is top_pools_<network>.
type TopPoolsCollector struct {
	Network string
	Dexes   []string // empty means a single network-wide fetch
	Client  geckoterminal.API
	Store   storage.Store
}

func (c *TopPoolsCollector) Key() string {
	return fmt.Sprintf("top_pools_%s", c.Network)
}

func (c *TopPoolsCollector) Validate(data any) ValidationResult {
	if pools, ok := data.([]geckoterminal.PoolDTO); ok {
		_, vr := validatePools(pools)
		return vr
	}
	return ValidationResult{}
}

func (c *TopPoolsCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	targets := c.Dexes
	if len(targets) == 0 {
		targets = []string{""}
	}

	for _, dex := range targets {
		var pools []geckoterminal.PoolDTO
		var err error
		if dex != "" {
			pools, err = c.Client.TopPoolsForDex(ctx, c.Network, dex)
		} else {
			pools, err = c.Client.TopPools(ctx, c.Network)
		}
		if err != nil {
			return res, err
		}
		res.RecordsCollected += len(pools)

		pools, vr := validatePools(pools)
		res.RecordsRejected += vr.Rejected
		res.Errors = append(res.Errors, vr.Reasons...)

		now := time.Now().UTC()
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
