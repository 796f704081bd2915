// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
)

// Compile-time interface check.
var _ store.TrackingStore = (*tracking)(nil)

// tracking stores stage entries and the error list as JSON columns; the
// record is always read and written whole.
type tracking CollectionStore

func (s *tracking) Get(ctx context.Context, assetID string) (*store.TrackingRecord, error) {
	const q = `SELECT asset_id, current_stage, stages, errors, created_at, updated_at FROM tracking WHERE asset_id = ?`
	rec, err := scanTracking(s.db.QueryRowContext(ctx, q, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tracking record", assetID)
	}
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "getting tracking record %s", assetID)
	}
	return rec, nil
}

func (s *tracking) Put(ctx context.Context, rec *store.TrackingRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	stages, err := marshalJSON(rec.Stages)
	if err != nil {
		return err
	}
	errs, err := marshalJSON(rec.Errors)
	if err != nil {
		return err
	}

	const q = `INSERT INTO tracking (asset_id, current_stage, stages, errors, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(asset_id) DO UPDATE SET
	current_stage = excluded.current_stage,
	stages = excluded.stages,
	errors = excluded.errors,
	updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, q,
		rec.AssetID,
		string(rec.CurrentStage),
		stages,
		errs,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "putting tracking record %s: %w", rec.AssetID, err)
	}
	return nil
}

func (s *tracking) List(ctx context.Context) ([]*store.TrackingRecord, error) {
	const q = `SELECT asset_id, current_stage, stages, errors, created_at, updated_at FROM tracking ORDER BY asset_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "listing tracking records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.TrackingRecord
	for rows.Next() {
		rec, err := scanTracking(rows)
		if err != nil {
			return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "scanning tracking row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "iterating tracking records: %w", err)
	}
	return out, nil
}

func scanTracking(row rowScanner) (*store.TrackingRecord, error) {
	var (
		rec                  store.TrackingRecord
		current              string
		stages, errs         string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.AssetID, &current, &stages, &errs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.CurrentStage = types.Stage(current)
	rec.Stages = make(map[types.Stage]store.StageEntry)
	if err := unmarshalJSON(stages, &rec.Stages); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(errs, &rec.Errors); err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}
