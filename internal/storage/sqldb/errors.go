package sqldb

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/vstruct/vstruct/internal/storage"
)

// isIntegrityErr reports whether err is a unique or foreign key violation
// of either backend.
func isIntegrityErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23: integrity constraint violation.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// isConnErr reports whether err signals an unreachable database.
func isConnErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return false
}

// wrapReadError maps a read failure onto the storage sentinels.
// sql.ErrNoRows converts to storage.ErrNotFound.
func wrapReadError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isIntegrityErr(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrIntegrity, err)
	case isConnErr(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConnection, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapWriteError maps a write failure onto the storage sentinels. Errors
// that are neither integrity nor connection failures become ErrUpdate.
func wrapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isIntegrityErr(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrIntegrity, err)
	case isConnErr(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConnection, err)
	case errors.Is(err, storage.ErrAssociation):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, storage.ErrUpdate, err)
}

// wrapConnError wraps a connection establishment failure.
func wrapConnError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, storage.ErrConnection, err)
}

// wrapAssociationError wraps an association rebuild failure.
func wrapAssociationError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, storage.ErrAssociation, err)
}
