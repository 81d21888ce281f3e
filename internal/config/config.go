// Package config defines the single typed configuration struct every other
// component is constructed from: one struct with enumerated fields, unknown
// fields rejected at load time. Loading is a single
// gopkg.in/yaml.v3 + os.ReadFile read-parse-validate pass.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root settings object. Every component is constructed from
// its section of this struct. Load applies the GT_* environment overrides;
// the Postgres store also falls back to GT_DB_STATEMENT_TIMEOUT_MS when no
// statement timeout is configured.
type Config struct {
	Network string   `yaml:"network"`
	Dexes   []string `yaml:"dexes"`

	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
	Storage   StorageConfig   `yaml:"storage"`

	MinTradeVolumeUSD       float64                  `yaml:"min_trade_volume_usd"`
	HistoricalBackfillSpan  time.Duration            `yaml:"historical_backfill_span"`
	OHLCVLookbackWindow     time.Duration            `yaml:"ohlcv_lookback_window"`
	Timeframes              []string                 `yaml:"timeframes"`
	CollectorIntervals      map[string]time.Duration `yaml:"collector_intervals"`
	CollectorRunTimeout     time.Duration            `yaml:"collector_run_timeout"`
	PerCollectorConcurrency int                      `yaml:"per_collector_concurrency"`
	SchedulerWorkers        int                      `yaml:"scheduler_workers"`
	ShutdownGracePeriod     time.Duration            `yaml:"shutdown_grace_period"`
	QueueOverlappingRuns    bool                     `yaml:"queue_overlapping_runs"`

	Watchlist WatchlistConfig `yaml:"watchlist"`
	Signal    SignalConfig    `yaml:"signal"`
	Health    HealthConfig    `yaml:"health"`
}

// HealthConfig tunes the alert-emission rules of the health tracker.
type HealthConfig struct {
	ErrorStreakThreshold     int     `yaml:"error_streak_threshold"`
	RateLimitRetryThreshold  int     `yaml:"rate_limit_retry_threshold"`
	ValidationRejectFraction float64 `yaml:"validation_reject_fraction"`
}

type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UseMockClient  bool          `yaml:"use_mock_client"`
	FixtureDir     string        `yaml:"fixture_dir"`
}

type RateLimitConfig struct {
	GlobalRequestsPerMinute float64       `yaml:"global_requests_per_minute"`
	PerEndpointDelay        time.Duration `yaml:"per_endpoint_delay"`
	MonthlyBudget           int           `yaml:"monthly_budget"`
	WarnFraction            float64       `yaml:"warn_fraction"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// StorageConfig selects and tunes one of the two portable storage flavors.
// Driver is selected at runtime, never at build time, so one binary serves
// both deployments.
type StorageConfig struct {
	Driver           string        `yaml:"driver"` // "postgres" | "sqlite"
	DSN              string        `yaml:"dsn"`
	SchemaPath       string        `yaml:"schema_path"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	BusyTimeout      time.Duration `yaml:"busy_timeout"` // sqlite only
	BatchMaxSize     int           `yaml:"batch_max_size"`
	BatchMaxWait     time.Duration `yaml:"batch_max_wait"`
}

type WatchlistConfig struct {
	CSVPath        string        `yaml:"csv_path"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

type SignalConfig struct {
	AlertThreshold         float64 `yaml:"alert_threshold"`
	AutoWatchlistThreshold float64 `yaml:"auto_watchlist_threshold"`
	LookbackIntervals      int     `yaml:"lookback_intervals"`
	MaxAgeGateHours        float64 `yaml:"max_age_gate_hours"`
	MinVolume24hUSD        float64 `yaml:"min_volume_24h_usd"`
	MinLiquidityUSD        float64 `yaml:"min_liquidity_usd"`
}

// Default returns a Config populated with defaults suitable for the
// upstream's free tier.
func Default() Config {
	return Config{
		Network: "solana",
		Dexes:   []string{},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.geckoterminal.com/api/v2",
			RequestTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			GlobalRequestsPerMinute: 30,
			PerEndpointDelay:        time.Second,
			MonthlyBudget:           10000,
			WarnFraction:            0.8,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  300 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     0.25,
			MaxDelay:   30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:           "postgres",
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  30 * time.Minute,
			ConnMaxIdleTime:  5 * time.Minute,
			StatementTimeout: 5 * time.Minute,
			BusyTimeout:      5 * time.Second,
			BatchMaxSize:     200,
			BatchMaxWait:     2 * time.Second,
		},
		MinTradeVolumeUSD:       0,
		HistoricalBackfillSpan:  6 * 30 * 24 * time.Hour,
		OHLCVLookbackWindow:     72 * time.Hour,
		Timeframes:              []string{"1h"},
		CollectorIntervals:      map[string]time.Duration{},
		CollectorRunTimeout:     10 * time.Minute,
		PerCollectorConcurrency: 5,
		SchedulerWorkers:        4,
		ShutdownGracePeriod:     10 * time.Second,
		Health: HealthConfig{
			ErrorStreakThreshold:     5,
			RateLimitRetryThreshold:  3,
			ValidationRejectFraction: 0.10,
		},
		Signal: SignalConfig{
			AlertThreshold:         60,
			AutoWatchlistThreshold: 75,
			LookbackIntervals:      12,
			MaxAgeGateHours:        24,
			MinVolume24hUSD:        1000,
			MinLiquidityUSD:        1000,
		},
	}
}

// Load reads path, decodes it strictly (unknown fields rejected), applies
// the GT_* environment overrides for per-process tuning knobs, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that would leave a required component
// unconstructable. Its errors are plain fmt errors, not errs.Error values;
// Load returns them wrapped, and a failure aborts startup.
func (c *Config) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("network is required")
	}
	if !c.Upstream.UseMockClient && c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required unless use_mock_client is set")
	}
	if c.Upstream.UseMockClient && c.Upstream.FixtureDir == "" {
		return fmt.Errorf("upstream.fixture_dir is required when use_mock_client is set")
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Signal.AutoWatchlistThreshold < c.Signal.AlertThreshold {
		return fmt.Errorf("signal.auto_watchlist_threshold must be >= signal.alert_threshold")
	}
	for _, tf := range c.Timeframes {
		switch tf {
		case "1m", "5m", "15m", "1h", "4h", "12h", "1d":
		default:
			return fmt.Errorf("unsupported timeframe %q", tf)
		}
	}
	return nil
}

// applyEnvOverrides follows the os.Getenv + strconv per-process tuning
// knob pattern used elsewhere in this codebase.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GT_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxOpenConns = n
		}
	}
	if v := os.Getenv("GT_DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxIdleConns = n
		}
	}
	if v := os.Getenv("GT_DB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("GT_HTTP_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.RequestTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("GT_RATE_LIMIT_RPM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.GlobalRequestsPerMinute = f
		}
	}
}
