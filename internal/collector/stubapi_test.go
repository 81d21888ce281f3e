package collector

import (
	"context"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/breaker"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/retry"
)

// stubAPI is a scripted geckoterminal.API: each endpoint delegates to an
// optional function field, defaulting to an empty response. Tests script
// exactly the endpoints their scenario touches.
type stubAPI struct {
	listNetworks   func(ctx context.Context) ([]geckoterminal.NetworkDTO, error)
	listDexes      func(ctx context.Context, network string) ([]geckoterminal.DexDTO, error)
	topPools       func(ctx context.Context, network string) ([]geckoterminal.PoolDTO, error)
	topPoolsForDex func(ctx context.Context, network, dex string) ([]geckoterminal.PoolDTO, error)
	multiPools     func(ctx context.Context, network string, ids []string) ([]geckoterminal.PoolDTO, error)
	poolByAddress  func(ctx context.Context, network, address string) (*geckoterminal.PoolDTO, error)
	ohlcv          func(ctx context.Context, network, poolAddress string, tf geckoterminal.Timeframe, params geckoterminal.OHLCVParams) ([]geckoterminal.CandleDTO, error)
	trades         func(ctx context.Context, network, poolAddress string, params geckoterminal.TradesParams) ([]geckoterminal.TradeDTO, error)
	tokenInfo      func(ctx context.Context, network, address string) (*geckoterminal.TokenDTO, error)
	newPools       func(ctx context.Context, network string, page int) ([]geckoterminal.PoolDTO, error)
}

func (s *stubAPI) ListNetworks(ctx context.Context) ([]geckoterminal.NetworkDTO, error) {
	if s.listNetworks != nil {
		return s.listNetworks(ctx)
	}
	return nil, nil
}

func (s *stubAPI) ListDexes(ctx context.Context, network string) ([]geckoterminal.DexDTO, error) {
	if s.listDexes != nil {
		return s.listDexes(ctx, network)
	}
	return nil, nil
}

func (s *stubAPI) TopPools(ctx context.Context, network string) ([]geckoterminal.PoolDTO, error) {
	if s.topPools != nil {
		return s.topPools(ctx, network)
	}
	return nil, nil
}

func (s *stubAPI) TopPoolsForDex(ctx context.Context, network, dex string) ([]geckoterminal.PoolDTO, error) {
	if s.topPoolsForDex != nil {
		return s.topPoolsForDex(ctx, network, dex)
	}
	return nil, nil
}

func (s *stubAPI) MultiPools(ctx context.Context, network string, ids []string) ([]geckoterminal.PoolDTO, error) {
	if s.multiPools != nil {
		return s.multiPools(ctx, network, ids)
	}
	return nil, nil
}

func (s *stubAPI) PoolByAddress(ctx context.Context, network, address string) (*geckoterminal.PoolDTO, error) {
	if s.poolByAddress != nil {
		return s.poolByAddress(ctx, network, address)
	}
	return nil, nil
}

func (s *stubAPI) OHLCV(ctx context.Context, network, poolAddress string, tf geckoterminal.Timeframe, params geckoterminal.OHLCVParams) ([]geckoterminal.CandleDTO, error) {
	if s.ohlcv != nil {
		return s.ohlcv(ctx, network, poolAddress, tf, params)
	}
	return nil, nil
}

func (s *stubAPI) Trades(ctx context.Context, network, poolAddress string, params geckoterminal.TradesParams) ([]geckoterminal.TradeDTO, error) {
	if s.trades != nil {
		return s.trades(ctx, network, poolAddress, params)
	}
	return nil, nil
}

func (s *stubAPI) TokenInfo(ctx context.Context, network, address string) (*geckoterminal.TokenDTO, error) {
	if s.tokenInfo != nil {
		return s.tokenInfo(ctx, network, address)
	}
	return nil, nil
}

func (s *stubAPI) NewPools(ctx context.Context, network string, page int) ([]geckoterminal.PoolDTO, error) {
	if s.newPools != nil {
		return s.newPools(ctx, network, page)
	}
	return nil, nil
}

// resilientAPI composes retry and circuit-breaker semantics around a
// scripted inner API the same way the production HTTP client does, so the
// end-to-end scenarios exercise the full stack without a network.
type resilientAPI struct {
	*stubAPI
	policy  retry.Policy
	breaker *breaker.Breaker
}

func (r *resilientAPI) OHLCV(ctx context.Context, network, poolAddress string, tf geckoterminal.Timeframe, params geckoterminal.OHLCVParams) ([]geckoterminal.CandleDTO, error) {
	var out []geckoterminal.CandleDTO
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		candles, err := r.attemptOHLCV(ctx, network, poolAddress, tf, params)
		out = candles
		return err
	})
	return out, err
}

func (r *resilientAPI) attemptOHLCV(ctx context.Context, network, poolAddress string, tf geckoterminal.Timeframe, params geckoterminal.OHLCVParams) ([]geckoterminal.CandleDTO, error) {
	if r.breaker != nil {
		if ok, err := r.breaker.Allow(); !ok {
			return nil, err
		}
	}
	candles, err := r.stubAPI.OHLCV(ctx, network, poolAddress, tf, params)
	if r.breaker != nil {
		r.breaker.RecordResult(err)
	}
	return candles, err
}

func (r *resilientAPI) ListDexes(ctx context.Context, network string) ([]geckoterminal.DexDTO, error) {
	if r.breaker != nil {
		if ok, err := r.breaker.Allow(); !ok {
			return nil, err
		}
	}
	dexes, err := r.stubAPI.ListDexes(ctx, network)
	if r.breaker != nil {
		r.breaker.RecordResult(err)
	}
	return dexes, err
}
