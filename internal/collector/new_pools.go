package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/config"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/signal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// newPoolsMaxPages is the upstream's page ceiling for the new-pools
// endpoint.
const newPoolsMaxPages = 10

// NewPoolsCollector discovers freshly-created pools, scores each with the
// signal package, and auto-promotes qualifying pools to the watchlist once
// they clear the age gate and minimum volume/liquidity floors. Scores
// crossing the alert threshold raise an operator alert even when the pool
// falls short of auto-promotion. Collection key is new_pools_<network>.
type NewPoolsCollector struct {
	Network string
	Signal  config.SignalConfig
	Client  geckoterminal.API
	Store   storage.Store
}

func (c *NewPoolsCollector) Key() string {
	return fmt.Sprintf("new_pools_%s", c.Network)
}

func (c *NewPoolsCollector) Validate(data any) ValidationResult {
	if pools, ok := data.([]geckoterminal.PoolDTO); ok {
		_, vr := validatePools(pools)
		return vr
	}
	return ValidationResult{}
}

func (c *NewPoolsCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	for page := 1; page <= newPoolsMaxPages; page++ {
		pools, err := c.Client.NewPools(ctx, c.Network, page)
		if err != nil {
			return res, err
		}
		if len(pools) == 0 {
			break
		}
		res.RecordsCollected += len(pools)

		pools, vr := validatePools(pools)
		res.RecordsRejected += vr.Rejected
		res.Errors = append(res.Errors, vr.Reasons...)

		for _, p := range pools {
			if err := c.processPool(ctx, p); err != nil {
				return res, err
			}
			res.RecordsStored++
		}
	}
	return res, nil
}

// processPool upserts one discovered pool with its tokens, appends the
// history snapshot with its freshly-computed score, and applies the
// alert / auto-watchlist decisions.
func (c *NewPoolsCollector) processPool(ctx context.Context, p geckoterminal.PoolDTO) error {
	now := time.Now().UTC()
	pool, tokens := poolTokensFromDTO(c.Network, p, now)
	if len(tokens) > 0 {
		if err := c.Store.UpsertTokens(ctx, tokens); err != nil {
			return err
		}
	}
	if err := c.Store.UpsertPools(ctx, []storage.Pool{pool}); err != nil {
		return err
	}

	snap := storage.NewPoolSnapshot{
		PoolID:       p.ID,
		CollectedAt:  now,
		Open:         p.BaseTokenPriceUSD,
		High:         p.BaseTokenPriceUSD,
		Low:          p.BaseTokenPriceUSD,
		Close:        p.BaseTokenPriceUSD,
		VolumeUSD:    p.Volume24h,
		LiquidityUSD: p.ReserveUSD,
		TxCount:      p.TxCount24h,
	}

	history, err := c.Store.RecentSnapshots(ctx, p.ID, c.Signal.LookbackIntervals)
	if err != nil {
		return err
	}
	result := signal.Score(historyToSignalSnapshots(history, snap))
	snap.SignalScore = result.Value
	snap.TrendTags = map[string]any{
		"volume_trend":    string(result.VolumeTrend),
		"liquidity_trend": string(result.LiquidityTrend),
		"momentum":        result.Momentum,
		"activity":        result.Activity,
		"volatility":      result.Volatility,
	}

	if err := c.Store.InsertNewPoolSnapshot(ctx, snap); err != nil {
		return err
	}

	if result.Value >= c.Signal.AlertThreshold {
		if err := c.Store.InsertSystemAlert(ctx, storage.SystemAlert{
			Level:         storage.AlertWarning,
			CollectorType: c.Key(),
			Message:       fmt.Sprintf("pool %s scored %.1f (volume %s, liquidity %s)", p.ID, result.Value, result.VolumeTrend, result.LiquidityTrend),
			Timestamp:     now,
			Metadata:      map[string]any{"pool_id": p.ID, "signal_score": result.Value},
		}); err != nil {
			return err
		}
	}

	if !c.qualifiesForWatchlist(p, result.Value, now) {
		return nil
	}

	// A pool already on the watchlist (manually or from a previous pass)
	// keeps its existing entry; promotion happens at most once.
	existing, err := c.Store.GetWatchlistEntry(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return c.Store.UpsertWatchlistEntry(ctx, storage.WatchlistEntry{
		PoolID:         p.ID,
		TokenSymbol:    p.BaseToken.Symbol,
		TokenName:      p.BaseToken.Name,
		NetworkAddress: p.Address,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       map[string]any{"auto_added": true, "signal_score": result.Value},
	})
}

func (c *NewPoolsCollector) qualifiesForWatchlist(p geckoterminal.PoolDTO, score float64, now time.Time) bool {
	if score < c.Signal.AutoWatchlistThreshold {
		return false
	}
	if p.Volume24h < c.Signal.MinVolume24hUSD {
		return false
	}
	if p.ReserveUSD < c.Signal.MinLiquidityUSD {
		return false
	}
	createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return false
	}
	ageHours := now.Sub(createdAt).Hours()
	return ageHours <= c.Signal.MaxAgeGateHours
}

func historyToSignalSnapshots(history []storage.NewPoolSnapshot, current storage.NewPoolSnapshot) []signal.Snapshot {
	out := make([]signal.Snapshot, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, signalSnapshot(history[i]))
	}
	out = append(out, signalSnapshot(current))
	return out
}

func signalSnapshot(s storage.NewPoolSnapshot) signal.Snapshot {
	return signal.Snapshot{
		VolumeUSD:    s.VolumeUSD,
		LiquidityUSD: s.LiquidityUSD,
		Close:        s.Close,
		TxCount:      s.TxCount,
	}
}
