/*
Package sqlite opens the SQLite backend.

PURPOSE:
  Opens a SQLite database with foreign keys and WAL enabled, migrates the
  schema and returns the shared SQL store.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

IN-MEMORY DATABASES:
  Every connection to ":memory:" gets its own empty database, so the pool
  is pinned to a single connection.

USAGE:
  st, err := sqlite.New(ctx, "./data/splitledger.db")
  if err != nil {
      return err
  }
  defer st.Close()

SEE ALSO:
  - store/sqlstore: Queries and schema
  - store/postgres: PostgreSQL backend
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/splitledger/store/sqlstore"
)

const Memory = ":memory:"

// New opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	store := sqlstore.New(db, sqlstore.SQLite)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Open returns the raw connection pool without migrating.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if path == Memory {
		dsn = path + "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == Memory {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
