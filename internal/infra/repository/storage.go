package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
)

// storageErr classifies a driver error as StorageFailure. Context errors
// pass through untouched so cancelled passes are not counted as failures.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return httperr.Storage(op, fmt.Errorf("sqlite %s (%d): %w", describeSQLite(sqErr.Code), int(sqErr.ExtendedCode), err))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return httperr.Storage(op, fmt.Errorf("postgres %s: %w", pgErr.Code, err))
	}

	return httperr.Storage(op, err)
}

func describeSQLite(code sqlite3.ErrNo) string {
	switch code {
	case sqlite3.ErrFull:
		return "disk full"
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return "corrupt database"
	case sqlite3.ErrIoErr:
		return "i/o error"
	case sqlite3.ErrReadonly:
		return "read-only database"
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return "database busy"
	case sqlite3.ErrCantOpen:
		return "cannot open database"
	}
	return code.Error()
}
