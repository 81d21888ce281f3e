// Package collector implements the shared collection framework:
// one Collector per upstream concern, each wrapped in the same
// collect-with-error-handling decorator so metadata bookkeeping and error
// dispatch are never duplicated per collector. Generalizes a per-source
// collector shape and a withRetry wrapper into a single reusable
// metadata+dispatch decorator.
package collector

import (
	"context"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/health"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// Collector is one unit of scheduled work. Key identifies it for the
// scheduler's no-overlap invariant and for collection_metadata rows;
// Validate exposes the collector's structural row checks so batches can be
// screened before storage.
type Collector interface {
	Key() string
	Collect(ctx context.Context) (Result, error)
	Validate(data any) ValidationResult
}

// WithErrorHandling wraps c so every invocation, regardless of outcome,
// updates collection_metadata and routes any error through dispatcher.
// Production and tests both run collectors through this wrapper; it is the
// unit of metadata truth.
type WithErrorHandling struct {
	inner      Collector
	store      storage.Store
	dispatcher *errs.Dispatcher
	health     *health.Tracker
	runTimeout time.Duration
}

// Decorate wraps inner with metadata bookkeeping and error dispatch.
// tracker may be nil, in which case health tracking is skipped. runTimeout
// bounds one pass's wall clock; zero means unbounded.
func Decorate(inner Collector, store storage.Store, dispatcher *errs.Dispatcher, tracker *health.Tracker, runTimeout time.Duration) *WithErrorHandling {
	return &WithErrorHandling{inner: inner, store: store, dispatcher: dispatcher, health: tracker, runTimeout: runTimeout}
}

func (w *WithErrorHandling) Key() string { return w.inner.Key() }

func (w *WithErrorHandling) Validate(data any) ValidationResult { return w.inner.Validate(data) }

// Collect runs the inner collector under the configured run timeout,
// updating collection_metadata and dispatching any error before returning.
// A run where some rows survived an in-batch failure is reported as a
// partial success rather than a failure.
func (w *WithErrorHandling) Collect(ctx context.Context) (Result, error) {
	// The run timeout bounds the collection pass only; metadata writes
	// below use the parent context so a timed-out run still records its
	// failure.
	runCtx := ctx
	if w.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.runTimeout)
		defer cancel()
	}

	started := time.Now().UTC()
	meta, err := w.store.GetCollectionMetadata(ctx, w.Key())
	if err != nil || meta == nil {
		meta = &storage.CollectionMetadata{CollectorType: w.Key()}
	}
	meta.LastRun = started
	meta.RunCount++

	res, runErr := w.inner.Collect(runCtx)
	res.CollectorKey = w.Key()
	res.Timestamp = started
	res.Duration = time.Since(started)
	res.Success = runErr == nil

	if runErr != nil {
		res.addError(runErr.Error())
		decision := w.dispatcher.Dispatch(runErr, errs.Context{
			Component: "collector",
			Operation: w.Key(),
		})
		if decision.PartialResult && res.RecordsStored > 0 {
			res.Success = true
			res.setMeta("partial", true)
			runErr = nil
		}
	}

	if w.health != nil {
		w.health.RecordResult(ctx, w.Key(), runErr)
		if res.RecordsCollected > 0 {
			w.health.RecordValidationBatch(ctx, w.Key(), res.RecordsRejected, res.RecordsCollected)
		}
		if runErr != nil && errs.As(runErr).Kind == errs.KindRateLimit {
			w.health.RecordRateLimit(ctx, w.Key())
		} else if runErr == nil {
			w.health.RecordRateLimitRecovered(w.Key())
		}
	}

	if runErr != nil {
		meta.ErrorCount++
		meta.LastError = runErr.Error()
	} else {
		success := started
		meta.LastSuccess = &success
	}
	mergeResultMeta(meta, res)

	if updErr := w.store.UpdateCollectionMetadata(ctx, *meta); updErr != nil {
		if runErr == nil {
			return res, updErr
		}
	}
	return res, runErr
}

// mergeResultMeta snapshots the run's result into the metadata row's JSON
// column so the last pass is inspectable per collector key.
func mergeResultMeta(meta *storage.CollectionMetadata, res Result) {
	if meta.Metadata == nil {
		meta.Metadata = make(map[string]any)
	}
	meta.Metadata["records_collected"] = res.RecordsCollected
	meta.Metadata["records_stored"] = res.RecordsStored
	meta.Metadata["records_rejected"] = res.RecordsRejected
	meta.Metadata["duration_ms"] = res.Duration.Milliseconds()
	if len(res.Errors) > 0 {
		meta.Metadata["last_run_errors"] = res.Errors
	} else {
		delete(meta.Metadata, "last_run_errors")
	}
	for k, v := range res.Metadata {
		meta.Metadata[k] = v
	}
}
