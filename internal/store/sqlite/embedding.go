// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.EmbeddingStore = (*EmbeddingStore)(nil)

// EmbeddingStore implements store.EmbeddingStore with a sqlite-vec vec0
// virtual table of fixed dimension.
type EmbeddingStore struct {
	db         *sql.DB
	dimensions int
}

// NewEmbeddingStore opens (or creates) a SQLite database at dbPath and
// initialises the vec0 table.
func NewEmbeddingStore(dbPath string, dimensions int) (*EmbeddingStore, error) {
	if dimensions <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "vector dimensions must be positive, got %d", dimensions)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "pinging sqlite db: %w", err)
	}

	ddl := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(asset_id TEXT PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "creating embeddings virtual table: %w", err)
	}

	return &EmbeddingStore{db: db, dimensions: dimensions}, nil
}

// Put inserts or replaces the embedding for assetID.
func (e *EmbeddingStore) Put(ctx context.Context, assetID string, embedding []float32) error {
	if assetID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "embedding: asset id is required")
	}
	if len(embedding) != e.dimensions {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput,
			"embedding for %s has %d dimensions, store expects %d", assetID, len(embedding), e.dimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "serializing embedding: %w", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE asset_id = ?`, assetID); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "deleting existing embedding %s: %w", assetID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO embeddings(asset_id, embedding) VALUES (?, ?)`, assetID, blob); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "inserting embedding %s: %w", assetID, err)
	}

	if err := tx.Commit(); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "committing embedding %s: %w", assetID, err)
	}
	return nil
}

// Get returns the stored embedding for assetID.
func (e *EmbeddingStore) Get(ctx context.Context, assetID string) ([]float32, error) {
	var blob []byte
	err := e.db.QueryRowContext(ctx, `SELECT embedding FROM embeddings WHERE asset_id = ?`, assetID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("embedding", assetID)
	}
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "getting embedding %s: %w", assetID, err)
	}
	return decodeFloat32(blob)
}

// Delete removes the embeddings for ids. Missing ids are ignored.
func (e *EmbeddingStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := e.db.ExecContext(ctx, `DELETE FROM embeddings WHERE asset_id IN (`+placeholders+`)`, args...); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "deleting embeddings: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (e *EmbeddingStore) Close() error {
	return e.db.Close()
}

// decodeFloat32 reverses sqlite_vec.SerializeFloat32 (little-endian float32).
func decodeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "embedding blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
