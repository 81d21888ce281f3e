package collector

import "time"

// Result is the record every collection pass returns: what one run
// collected, what actually landed in storage, and how long it took. The
// decorator persists a snapshot of it into collection_metadata so
// operators can inspect the last pass per collector key without log
// archaeology.
type Result struct {
	CollectorKey     string
	Success          bool
	RecordsCollected int
	RecordsStored    int
	RecordsRejected  int
	Errors           []string
	Duration         time.Duration
	Timestamp        time.Time
	Metadata         map[string]any
}

// addError appends a per-row error without failing the whole run.
func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// setMeta lazily initializes and writes one metadata key.
func (r *Result) setMeta(key string, v any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = v
}

// ValidationResult reports how a batch fared against a collector's
// structural checks: rows that passed, rows dropped, and why. A batch
// where some rows pass and some fail is a partial success, not a failure.
type ValidationResult struct {
	Valid    int
	Rejected int
	Reasons  []string
}

// Rejects reports whether any row was dropped.
func (v ValidationResult) Rejects() bool { return v.Rejected > 0 }

func (v *ValidationResult) reject(reason string) {
	v.Rejected++
	v.Reasons = append(v.Reasons, reason)
}
