package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/snogcel/geckoterminal-collector-sub001/internal/errs"
)

func TestClassifyDBErrorPostgresCodes(t *testing.T) {
	cases := map[string]errs.Kind{
		"23505": errs.KindDatabaseConstraint,
		"23503": errs.KindDatabaseConstraint,
		"55P03": errs.KindDatabaseLock,
		"40P01": errs.KindDatabaseLock,
		"57014": errs.KindDatabaseTimeout,
		"08006": errs.KindDatabaseConnection,
	}
	for code, want := range cases {
		err := classifyDBError("op", fmt.Errorf("exec: %w", &pgconn.PgError{Code: code}))
		assert.Equalf(t, want, errs.As(err).Kind, "code %s", code)
	}
}

func TestClassifyDBErrorSQLiteCodes(t *testing.T) {
	busy := classifyDBError("op", sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.Equal(t, errs.KindDatabaseLock, errs.As(busy).Kind)

	constraint := classifyDBError("op", sqlite3.Error{Code: sqlite3.ErrConstraint})
	assert.Equal(t, errs.KindDatabaseConstraint, errs.As(constraint).Kind)
}

func TestClassifyDBErrorPassesThroughUnknown(t *testing.T) {
	plain := errors.New("some driver hiccup")
	assert.Same(t, plain, classifyDBError("op", plain))
	assert.NoError(t, classifyDBError("op", nil))
}

func TestClassifyDBErrorDeadlineIsTimeout(t *testing.T) {
	err := classifyDBError("op", fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, errs.KindDatabaseTimeout, errs.As(err).Kind)
}
