// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// CollectionStore holds the support_sets, query_sets, experiments,
// experiment_results and tracking tables in a single database.
type CollectionStore struct {
	db *sql.DB
}

// NewCollectionStore opens (or creates) a SQLite database at dbPath and
// initialises the collection tables.
func NewCollectionStore(dbPath string) (*CollectionStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "migrating sqlite db: %w", err)
	}

	return &CollectionStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS support_sets (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL DEFAULT '',
	lineage_id     TEXT NOT NULL,
	version        INTEGER NOT NULL,
	parent_version TEXT NOT NULL DEFAULT '',
	classes        TEXT NOT NULL DEFAULT '{}',
	created_at     TEXT NOT NULL,
	UNIQUE (lineage_id, version)
);

CREATE TABLE IF NOT EXISTS query_sets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	asset_ids  TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS experiments (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL DEFAULT '',
	support_set_id       TEXT NOT NULL,
	query_set_id         TEXT NOT NULL,
	method               TEXT NOT NULL,
	threshold            REAL NOT NULL,
	status               TEXT NOT NULL DEFAULT 'created',
	parent_experiment_id TEXT NOT NULL DEFAULT '',
	error                TEXT NOT NULL DEFAULT '',
	results_ref          TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL,
	started_at           TEXT NOT NULL DEFAULT '',
	finished_at          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS experiment_results (
	experiment_id TEXT PRIMARY KEY,
	predictions   TEXT NOT NULL DEFAULT '{}',
	summary       TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracking (
	asset_id      TEXT PRIMARY KEY,
	current_stage TEXT NOT NULL DEFAULT 'none',
	stages        TEXT NOT NULL DEFAULT '{}',
	errors        TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *CollectionStore) Close() error {
	return s.db.Close()
}

// classifyExecErr maps constraint violations to the conflict code.
func classifyExecErr(err error, format string, args ...any) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return sigilerr.Errorf(sigilerr.CodeStoreConflict, format+": %w", append(args, err)...)
	}
	return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, format+": %w", append(args, err)...)
}

func notFound(kind, id string) error {
	return sigilerr.Errorf(sigilerr.CodeStoreEntityNotFound, "%s %s not found", kind, id)
}

func limitOffset(opts store.ListOpts) (int, int) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	return limit, opts.Offset
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "marshalling column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "unmarshalling column: %w", err)
	}
	return nil
}

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime serialises a time.Time in UTC with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
