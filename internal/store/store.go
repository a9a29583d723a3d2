// Package store is the only component of this system allowed to touch the
// SQLite database. It exposes typed repository methods grouped by table;
// callers never see raw SQL.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection and every repository method.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite database at dbPath and applies the
// schema. Safe to call against an existing database; every statement in
// Schema is idempotent.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw access (the
// aggregator tests use it to set fixture timestamps). Transactions spanning
// several repository methods go through WithTx instead.
func (s *Store) DB() *sql.DB {
	return s.db
}
