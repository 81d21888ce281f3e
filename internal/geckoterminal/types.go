// Package geckoterminal implements the upstream market-data client:
// one method per endpoint, a shared long-lived HTTP session, and
// a parallel MockClient with an identical method set for tests. The
// per-endpoint-method / typed-response shape follows a sibling
// DEX-aggregator SDK's style; session reuse and classified-error-on-failure
// follow a Client/PinnedClient split translated from gRPC to net/http.
package geckoterminal

import "context"

// NetworkDTO mirrors one network entry from the upstream API.
type NetworkDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DexDTO mirrors one DEX entry.
type DexDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TokenDTO mirrors the token attributes embedded in pool/token responses.
type TokenDTO struct {
	ID       string   `json:"id"`
	Address  string   `json:"address"`
	Name     string   `json:"name"`
	Symbol   string   `json:"symbol"`
	Decimals int      `json:"decimals"`
	Network  string   `json:"network"`
	PriceUSD *float64 `json:"price_usd,omitempty"`
}

// PoolDTO mirrors one pool entry from top-pools/multi-pools/new-pools.
type PoolDTO struct {
	ID                string   `json:"id"`
	Address           string   `json:"address"`
	Name              string   `json:"name"`
	DexID             string   `json:"dex_id"`
	BaseToken         TokenDTO `json:"base_token"`
	QuoteToken        TokenDTO `json:"quote_token"`
	ReserveUSD        float64  `json:"reserve_in_usd"`
	Volume24h         float64  `json:"volume_usd_24h"`
	BaseTokenPriceUSD float64  `json:"base_token_price_usd"`
	CreatedAt         string   `json:"pool_created_at"`
	TxCount24h        int      `json:"transactions_24h"`
}

// CandleDTO mirrors one OHLCV row as returned by the ohlcv endpoint (the API
// returns candles as flat numeric tuples; this is the parsed form).
type CandleDTO struct {
	TimestampUnix int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	VolumeUSD     float64
}

// TradeDTO mirrors one row from the trades endpoint.
type TradeDTO struct {
	ID              string  `json:"id"`
	BlockNumber     int64   `json:"block_number"`
	TxHash          string  `json:"tx_hash"`
	FromTokenAmount float64 `json:"from_token_amount"`
	ToTokenAmount   float64 `json:"to_token_amount"`
	PriceUSD        float64 `json:"price_usd"`
	VolumeUSD       float64 `json:"volume_usd"`
	Side            string  `json:"side"`
	BlockTimestamp  string  `json:"block_timestamp"`
}

// Timeframe is the upstream's coarse-grained timeframe selector, distinct
// from storage.Timeframe (day, hour, or minute granularities).
type Timeframe string

const (
	TimeframeDay    Timeframe = "day"
	TimeframeHour   Timeframe = "hour"
	TimeframeMinute Timeframe = "minute"
)

// OHLCVParams carries the optional query parameters the upstream API accepts.
type OHLCVParams struct {
	Aggregate             int
	BeforeTimestamp       int64
	Limit                 int
	Currency              string
	IncludeEmptyIntervals bool
	Token                 string
}

// TradesParams carries the trade-endpoint's filter.
type TradesParams struct {
	MinVolumeUSD float64
}

// API is the capability set every collector is polymorphic over.
// Both Client and MockClient satisfy it.
type API interface {
	ListNetworks(ctx context.Context) ([]NetworkDTO, error)
	ListDexes(ctx context.Context, network string) ([]DexDTO, error)
	TopPools(ctx context.Context, network string) ([]PoolDTO, error)
	TopPoolsForDex(ctx context.Context, network, dex string) ([]PoolDTO, error)
	MultiPools(ctx context.Context, network string, ids []string) ([]PoolDTO, error)
	PoolByAddress(ctx context.Context, network, address string) (*PoolDTO, error)
	OHLCV(ctx context.Context, network, poolAddress string, tf Timeframe, params OHLCVParams) ([]CandleDTO, error)
	Trades(ctx context.Context, network, poolAddress string, params TradesParams) ([]TradeDTO, error)
	TokenInfo(ctx context.Context, network, address string) (*TokenDTO, error)
	NewPools(ctx context.Context, network string, page int) ([]PoolDTO, error)
}
