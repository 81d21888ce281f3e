package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

// classifyDBError maps driver-level failures onto the shared error
// taxonomy so the dispatcher picks the right recovery strategy:
// constraint violations skip silently, lock/timeout retries with backoff,
// connection loss counts toward the storage breaker. Errors with no
// recognizable driver classification pass through unchanged.
func classifyDBError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return errs.Wrap(errs.KindDatabaseConstraint, "storage", op, err)
		case strings.HasPrefix(pgErr.Code, "23"): // other integrity violations
			return errs.Wrap(errs.KindDatabaseConstraint, "storage", op, err)
		case pgErr.Code == "55P03" || pgErr.Code == "40P01": // lock_not_available, deadlock
			return errs.Wrap(errs.KindDatabaseLock, "storage", op, err)
		case pgErr.Code == "57014": // query_canceled (statement_timeout)
			return errs.Wrap(errs.KindDatabaseTimeout, "storage", op, err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return errs.Wrap(errs.KindDatabaseConnection, "storage", op, err)
		}
		return err
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return errs.Wrap(errs.KindDatabaseLock, "storage", op, err)
		case sqlite3.ErrConstraint:
			return errs.Wrap(errs.KindDatabaseConstraint, "storage", op, err)
		case sqlite3.ErrCantOpen:
			return errs.Wrap(errs.KindDatabaseConnection, "storage", op, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindDatabaseTimeout, "storage", op, err)
	}
	return err
}
