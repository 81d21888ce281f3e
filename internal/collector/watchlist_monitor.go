package collector

import (
	"context"
	"log"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/watchlist"
)

// WatchlistMonitorCollector reloads the watchlist CSV, if present, on every
// scheduled run and reconciles it one-way into storage: additions and
// status flips, never deletions. Idempotent, safe to run on every interval.
// Collection key is watchlist_monitor.
type WatchlistMonitorCollector struct {
	noValidation
	CSVPath    string
	Store      storage.Store
	Reconciler *watchlist.Reconciler
}

// NewWatchlistMonitorCollector builds a WatchlistMonitorCollector reading
// the CSV at csvPath and reconciling into store.
func NewWatchlistMonitorCollector(csvPath string, store storage.Store) *WatchlistMonitorCollector {
	return &WatchlistMonitorCollector{
		CSVPath:    csvPath,
		Store:      store,
		Reconciler: &watchlist.Reconciler{Store: store},
	}
}

func (c *WatchlistMonitorCollector) Key() string { return "watchlist_monitor" }

func (c *WatchlistMonitorCollector) Collect(ctx context.Context) (Result, error) {
	var res Result
	if c.CSVPath == "" {
		return res, nil
	}
	rows, err := watchlist.ReadCSV(c.CSVPath)
	if err != nil {
		return res, err
	}
	res.RecordsCollected = len(rows)
	touched, err := c.Reconciler.Reconcile(ctx, rows)
	if err != nil {
		return res, err
	}
	res.RecordsStored = touched
	log.Printf("[watchlist_monitor] reconciled %d entries from %s", touched, c.CSVPath)
	return res, nil
}
