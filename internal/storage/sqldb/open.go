// Package sqldb implements the catalog storage contract on top of a
// relational database. PostgreSQL and SQLite are supported; the bulk
// upsert is the only dialect-aware code and every other statement is
// written once and rebound per driver.
package sqldb

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Dialect selects the storage backend. Dispatch is static: anything
// other than the two supported dialects is rejected at open time.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Config carries the connection settings for a Store.
type Config struct {
	Dialect Dialect
	// DSN is the driver-specific connection string: a PostgreSQL URL or
	// an SQLite file path.
	DSN string
}

// Store is the SQL-backed implementation of storage.Store.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects to the configured database, applies the schema and
// returns the store. Unsupported dialects yield an error.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Dialect {
	case DialectPostgres:
		db, err = sqlx.Connect("pgx", cfg.DSN)
	case DialectSQLite:
		dsn := cfg.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=1&_journal_mode=WAL"
		}
		db, err = sqlx.Connect("sqlite3", dsn)
		if db != nil {
			// SQLite serializes writers; a single connection avoids
			// database-locked errors under concurrent handlers.
			db.SetMaxOpenConns(1)
		}
	default:
		return nil, fmt.Errorf("unsupported database dialect %q: use %q or %q",
			cfg.Dialect, DialectPostgres, DialectSQLite)
	}
	if err != nil {
		return nil, wrapConnError("open database", err)
	}

	s := &Store{db: db, dialect: cfg.Dialect, logger: logger}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := schemaSQLite
	if s.dialect == DialectPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
