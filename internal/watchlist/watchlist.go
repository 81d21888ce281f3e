// Package watchlist implements the one-way CSV-to-database reconciliation:
// a CSV file is the source of truth for manual
// watchlist membership, and every reload reconciles storage to match it.
// Follows the env/CSV-free config loading idiom generalized
// to encoding/csv, since no example repo carries a CSV dependency for this
// shape of job.
package watchlist

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
	"github.com/snogcel/geckoterminal-collector-sub001/internal/storage"
)

// Row is one parsed watchlist CSV line. The header is
// pool_id,symbol,name,network_address,is_active.
type Row struct {
	PoolID         string
	Symbol         string
	Name           string
	NetworkAddress string
	IsActive       bool
}

// ReadCSV parses the watchlist CSV at path.
func ReadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "watchlist", "read_csv", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, errs.Wrap(errs.KindParsing, "watchlist", "read_csv", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, want := range []string{"pool_id", "symbol", "name", "network_address", "is_active"} {
		if _, ok := col[want]; !ok {
			return nil, errs.New(errs.KindValidation, "watchlist", "read_csv", fmt.Sprintf("missing required column %q", want))
		}
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindParsing, "watchlist", "read_csv", err)
		}
		active, _ := strconv.ParseBool(rec[col["is_active"]])
		rows = append(rows, Row{
			PoolID:         rec[col["pool_id"]],
			Symbol:         rec[col["symbol"]],
			Name:           rec[col["name"]],
			NetworkAddress: rec[col["network_address"]],
			IsActive:       active,
		})
	}
	return rows, nil
}

// WriteCSV exports entries to path under the same header ReadCSV expects,
// for operators who want programmatic additions reflected back into the
// file they edit. The write is atomic via a rename from a temp file.
func WriteCSV(path string, entries []storage.WatchlistEntry) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.KindConfiguration, "watchlist", "write_csv", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"pool_id", "symbol", "name", "network_address", "is_active"}); err != nil {
		f.Close()
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.PoolID, e.TokenSymbol, e.TokenName, e.NetworkAddress, strconv.FormatBool(e.IsActive)}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Reconciler applies CSV rows to storage: known pool IDs update their
// watchlist entry; unknown pool IDs get a minimal pool row created first
// so the foreign key the entry depends on exists.
// Any active-DB entry absent from the CSV is deactivated, never deleted,
// unless its metadata marks it auto_added; auto-promoted entries are left
// as they are.
type Reconciler struct {
	Store storage.Store
}

// Reconcile applies rows, returning the count of entries touched.
func (r *Reconciler) Reconcile(ctx context.Context, rows []Row) (int, error) {
	seen := make(map[string]bool, len(rows))
	now := time.Now().UTC()
	touched := 0

	for _, row := range rows {
		seen[row.PoolID] = true

		exists, err := r.Store.PoolExists(ctx, row.PoolID)
		if err != nil {
			return touched, err
		}
		if !exists {
			if err := r.Store.CreateMinimalPool(ctx, row.PoolID, row.NetworkAddress); err != nil {
				return touched, err
			}
		}

		existing, err := r.Store.GetWatchlistEntry(ctx, row.PoolID)
		if err != nil {
			return touched, err
		}
		createdAt := now
		if existing != nil {
			createdAt = existing.CreatedAt
		}

		if err := r.Store.UpsertWatchlistEntry(ctx, storage.WatchlistEntry{
			PoolID:         row.PoolID,
			TokenSymbol:    row.Symbol,
			TokenName:      row.Name,
			NetworkAddress: row.NetworkAddress,
			IsActive:       row.IsActive,
			CreatedAt:      createdAt,
			UpdatedAt:      now,
		}); err != nil {
			return touched, err
		}
		touched++
	}

	all, err := r.Store.AllWatchlistEntries(ctx)
	if err != nil {
		return touched, err
	}
	for _, e := range all {
		if seen[e.PoolID] || !e.IsActive {
			continue
		}
		// Auto-promoted entries live in the DB only; the CSV not listing
		// them is expected, not a removal.
		if auto, ok := e.Metadata["auto_added"].(bool); ok && auto {
			continue
		}
		e.IsActive = false
		e.UpdatedAt = now
		if err := r.Store.UpsertWatchlistEntry(ctx, e); err != nil {
			return touched, err
		}
		touched++
	}

	return touched, nil
}
