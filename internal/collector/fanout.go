package collector

import (
	"context"
	"sync"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// forEachEntry fans fn out over entries with at most limit in flight,
// stopping new dispatch once ctx is done. Per-entry errors are collected
// rather than aborting the whole pass: one pool failing never blocks the
// rest of the watchlist.
func forEachEntry(ctx context.Context, limit int, entries []storage.WatchlistEntry, fn func(ctx context.Context, e storage.WatchlistEntry) error) []error {
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var errors []error

	for _, e := range entries {
		select {
		case <-ctx.Done():
			mu.Lock()
			errors = append(errors, ctx.Err())
			mu.Unlock()
			wg.Wait()
			return errors
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(e storage.WatchlistEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, e); err != nil {
				mu.Lock()
				errors = append(errors, err)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	return errors
}
