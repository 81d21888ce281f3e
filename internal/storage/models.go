// Package storage abstracts the underlying relational database.
// Two flavors are supported behind the same Store interface:
// a Postgres-backed Store and an embedded SQLite-backed Store.
package storage

import "time"

// Dex is the (id, name, network_id) venue identifier.
type Dex struct {
	ID        string
	Name      string
	NetworkID string
	CreatedAt time.Time
}

// Token is one (address, network) pair. Address is case-sensitive; ID is the
// API's canonical network_address string.
type Token struct {
	ID          string
	Address     string
	Name        string
	Symbol      string
	Decimals    int
	Network     string
	PriceUSD    *float64
	LastUpdated time.Time
}

// Pool is the per-pair metadata row. DexID/BaseTokenID/QuoteTokenID may be
// nil for minimal-pool rows created by a watchlist addition for an unknown
// pool; they are filled by the next top-pools or
// multi-pool fetch.
type Pool struct {
	ID           string
	Address      string
	Name         string
	DexID        *string
	BaseTokenID  *string
	QuoteTokenID *string
	ReserveUSD   float64
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// Timeframe is the closed set of supported OHLCV granularities.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
)

// PeriodSeconds returns the grid spacing a timeframe's candles must align to.
func (t Timeframe) PeriodSeconds() int64 {
	switch t {
	case Timeframe1m:
		return 60
	case Timeframe5m:
		return 5 * 60
	case Timeframe15m:
		return 15 * 60
	case Timeframe1h:
		return 3600
	case Timeframe4h:
		return 4 * 3600
	case Timeframe12h:
		return 12 * 3600
	case Timeframe1d:
		return 24 * 3600
	default:
		return 0
	}
}

// Candle is one OHLCV row. Uniqueness key is (PoolID, Timeframe, TimestampUnix).
type Candle struct {
	PoolID        string
	Timeframe     Timeframe
	TimestampUnix int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	VolumeUSD     float64
	Datetime      time.Time
}

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed swap. Unique by ID.
type Trade struct {
	ID              string
	PoolID          string
	BlockNumber     int64
	TxHash          string
	FromTokenAmount float64
	ToTokenAmount   float64
	PriceUSD        float64
	VolumeUSD       float64
	Side            Side
	BlockTimestamp  time.Time
}

// WatchlistEntry is exactly one row per PoolID.
type WatchlistEntry struct {
	PoolID         string
	TokenSymbol    string
	TokenName      string
	NetworkAddress string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// NewPoolSnapshot is an append-only time-series row, one per scheduled pass.
type NewPoolSnapshot struct {
	PoolID       string
	CollectedAt  time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	VolumeUSD    float64
	LiquidityUSD float64
	TxCount      int
	SignalScore  float64
	TrendTags    map[string]any
}

// CollectionMetadata is the per-collector key row. RunCount/ErrorCount are
// monotonic; RunCount >= ErrorCount always holds.
type CollectionMetadata struct {
	CollectorType string
	LastRun       time.Time
	LastSuccess   *time.Time
	RunCount      int64
	ErrorCount    int64
	LastError     string
	Metadata      map[string]any
}

// AlertLevel is the closed set of system-alert severities.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// SystemAlert is one append-only operator-facing alert row.
type SystemAlert struct {
	ID            int64
	Level         AlertLevel
	CollectorType string
	Message       string
	Timestamp     time.Time
	Acknowledged  bool
	Resolved      bool
	Metadata      map[string]any
}

// Gap is one missing interval a gap query reports.
type Gap struct {
	Start int64
	End   int64
}
