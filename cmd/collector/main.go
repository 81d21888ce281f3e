// Command collector runs the scheduled pool/candle/trade/watchlist
// collection loop. It wires together the
// resilience stack (rate limiter, circuit breaker, retry policy), an
// upstream client (real or fixture-backed mock), a storage backend
// (Postgres or SQLite, chosen at runtime), and the eight scheduled
// collectors, then runs them under a worker-pooled scheduler until
// interrupted. Follows a signal-driven graceful shutdown sequence.
package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/breaker"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/collector"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/config"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/geckoterminal"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/health"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/ratelimit"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/retry"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/scheduler"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("open storage (%s, dsn=%s): %v", cfg.Storage.Driver, redactDSN(cfg.Storage.DSN), err)
	}
	defer store.Close()

	tracker := newTracker(cfg, store)
	dispatcher := errs.NewDispatcher(func(kind errs.Kind, component, message string, extra map[string]any) {
		log.Printf("[alert] kind=%s component=%s message=%s extra=%v", kind, component, message, extra)
		if err := store.InsertSystemAlert(ctx, storage.SystemAlert{
			Level:         storage.AlertLevel(kind.Severity()),
			CollectorType: component,
			Message:       message,
			Timestamp:     time.Now().UTC(),
			Metadata:      extra,
		}); err != nil {
			log.Printf("[alert] insert failed: %v", err)
		}
	})

	client, closeClient := openClient(ctx, cfg, tracker)
	defer closeClient()

	backfill := collector.NewBackfillQueue()
	sched := scheduler.New(cfg.SchedulerWorkers, cfg.QueueOverlappingRuns)
	for _, c := range buildCollectors(cfg, client, store, backfill) {
		interval := cfg.CollectorIntervals[c.Key()]
		if interval <= 0 {
			interval = time.Minute
		}
		sched.Register(collector.Decorate(c, store, dispatcher, tracker, cfg.CollectorRunTimeout), interval)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("shutdown signal received, draining in-flight collectors")
		cancel()
	}()

	sched.Run(ctx, cfg.ShutdownGracePeriod)
	log.Println("collector stopped")
}

func newTracker(cfg *config.Config, store storage.Store) *health.Tracker {
	tracker := health.New(store)
	if cfg.Health.ErrorStreakThreshold > 0 {
		tracker.ErrorStreakThreshold = cfg.Health.ErrorStreakThreshold
	}
	if cfg.Health.RateLimitRetryThreshold > 0 {
		tracker.RateLimitRetryThreshold = cfg.Health.RateLimitRetryThreshold
	}
	if cfg.Health.ValidationRejectFraction > 0 {
		tracker.ValidationRejectFraction = cfg.Health.ValidationRejectFraction
	}
	return tracker
}

// buildCollectors constructs one instance of every scheduled collector,
// wired from cfg rather than hardcoded defaults.
func buildCollectors(cfg *config.Config, client geckoterminal.API, store storage.Store, backfill *collector.BackfillQueue) []collector.Collector {
	timeframes := make([]storage.Timeframe, 0, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		timeframes = append(timeframes, storage.Timeframe(tf))
	}

	collectors := []collector.Collector{
		&collector.DexListCollector{Network: cfg.Network, Client: client, Store: store},
		&collector.TopPoolsCollector{Network: cfg.Network, Dexes: cfg.Dexes, Client: client, Store: store},
		&collector.NewPoolsCollector{Network: cfg.Network, Signal: cfg.Signal, Client: client, Store: store},
		&collector.OHLCVCollector{
			Network:        cfg.Network,
			Timeframes:     timeframes,
			LookbackWindow: cfg.OHLCVLookbackWindow,
			BackfillMaxAge: cfg.HistoricalBackfillSpan,
			Concurrency:    cfg.PerCollectorConcurrency,
			Backfill:       backfill,
			Client:         client,
			Store:          store,
		},
		&collector.HistoricalOHLCVCollector{
			Network:        cfg.Network,
			Timeframes:     timeframes,
			BackfillSpan:   cfg.HistoricalBackfillSpan,
			BackfillMaxAge: cfg.HistoricalBackfillSpan,
			Backfill:       backfill,
			Client:         client,
			Store:          store,
		},
		&collector.TradeCollector{
			Network:      cfg.Network,
			MinVolumeUSD: cfg.MinTradeVolumeUSD,
			Concurrency:  cfg.PerCollectorConcurrency,
			Client:       client,
			Store:        store,
		},
		&collector.WatchlistCollector{Network: cfg.Network, Client: client, Store: store},
		collector.NewWatchlistMonitorCollector(cfg.Watchlist.CSVPath, store),
	}
	return collectors
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return storage.NewSQLiteStore(ctx, cfg)
	default:
		return storage.NewPostgresStore(ctx, cfg)
	}
}

// openClient returns the real HTTP client or the CSV-fixture mock per
// cfg.Upstream.UseMockClient, plus a close func safe to defer
// unconditionally (the mock has nothing to close).
func openClient(ctx context.Context, cfg *config.Config, tracker *health.Tracker) (geckoterminal.API, func()) {
	if cfg.Upstream.UseMockClient {
		return geckoterminal.NewMockClient(cfg.Upstream.FixtureDir), func() {}
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRPM:        cfg.RateLimit.GlobalRequestsPerMinute,
		PerEndpointDelay: cfg.RateLimit.PerEndpointDelay,
		MonthlyBudget:    cfg.RateLimit.MonthlyBudget,
		WarnFraction:     cfg.RateLimit.WarnFraction,
	})
	br := breaker.New("geckoterminal-upstream", breaker.Config{
		Threshold:       cfg.Breaker.FailureThreshold,
		RecoveryTimeout: cfg.Breaker.RecoveryTimeout,
		OnStateChange: func(name string, from, to breaker.State) {
			log.Printf("[breaker] %s %s -> %s", name, from, to)
			switch to {
			case breaker.Open:
				tracker.RecordBreakerOpen(ctx, name)
			case breaker.Closed:
				tracker.RecordBreakerClosed(name)
			}
		},
	})
	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		Multiplier: cfg.Retry.Multiplier,
		Jitter:     cfg.Retry.Jitter,
		MaxDelay:   cfg.Retry.MaxDelay,
	}
	client := geckoterminal.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.RequestTimeout, limiter, br, policy)
	return client, func() { _ = client.Close() }
}

var dsnPasswordRe = regexp.MustCompile(`(://[^:/?#]+):[^@/?#]+@`)

// redactDSN strips a password component out of a DSN before it reaches a
// log line, falling back to a regex scrub for DSNs net/url can't parse
// (e.g. bare sqlite file paths with query parameters).
func redactDSN(raw string) string {
	if raw == "" {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			return u.String()
		}
	}
	return dsnPasswordRe.ReplaceAllString(raw, "$1:REDACTED@")
}
