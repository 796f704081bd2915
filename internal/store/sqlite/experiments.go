// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.ExperimentStore = (*experiments)(nil)
	_ store.ResultStore     = (*results)(nil)
)

type experiments CollectionStore

const experimentColumns = `id, name, support_set_id, query_set_id, method, threshold, status,
parent_experiment_id, error, results_ref, created_at, updated_at, started_at, finished_at`

func (s *experiments) Create(ctx context.Context, exp *store.Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO experiments (` + experimentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		exp.ID,
		exp.Name,
		exp.SupportSetID,
		exp.QuerySetID,
		exp.Method,
		float64(exp.Threshold),
		string(exp.Status),
		exp.ParentExperimentID,
		exp.Error,
		exp.ResultsRef,
		formatTime(exp.CreatedAt),
		formatTime(exp.UpdatedAt),
		formatTime(exp.StartedAt),
		formatTime(exp.FinishedAt),
	)
	if err != nil {
		return classifyExecErr(err, "creating experiment %s", exp.ID)
	}
	return nil
}

func (s *experiments) Get(ctx context.Context, id string) (*store.Experiment, error) {
	const q = `SELECT ` + experimentColumns + ` FROM experiments WHERE id = ?`
	exp, err := scanExperiment(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("experiment", id)
	}
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "getting experiment %s: %w", id, err)
	}
	return exp, nil
}

func (s *experiments) Update(ctx context.Context, exp *store.Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}

	const q = `UPDATE experiments SET name = ?, support_set_id = ?, query_set_id = ?, method = ?,
threshold = ?, status = ?, parent_experiment_id = ?, error = ?, results_ref = ?,
updated_at = ?, started_at = ?, finished_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		exp.Name,
		exp.SupportSetID,
		exp.QuerySetID,
		exp.Method,
		float64(exp.Threshold),
		string(exp.Status),
		exp.ParentExperimentID,
		exp.Error,
		exp.ResultsRef,
		formatTime(exp.UpdatedAt),
		formatTime(exp.StartedAt),
		formatTime(exp.FinishedAt),
		exp.ID,
	)
	if err != nil {
		return classifyExecErr(err, "updating experiment %s", exp.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "checking rows affected for experiment %s: %w", exp.ID, err)
	}
	if rows == 0 {
		return notFound("experiment", exp.ID)
	}
	return nil
}

func (s *experiments) List(ctx context.Context, opts store.ListOpts) ([]*store.Experiment, error) {
	limit, offset := limitOffset(opts)
	const q = `SELECT ` + experimentColumns + ` FROM experiments ORDER BY created_at, id LIMIT ? OFFSET ?`
	return s.query(ctx, q, limit, offset)
}

func (s *experiments) ListByStatus(ctx context.Context, status store.ExperimentStatus) ([]*store.Experiment, error) {
	const q = `SELECT ` + experimentColumns + ` FROM experiments WHERE status = ? ORDER BY created_at, id`
	return s.query(ctx, q, string(status))
}

func (s *experiments) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "deleting experiment %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "checking rows affected for experiment %s: %w", id, err)
	}
	if rows == 0 {
		return notFound("experiment", id)
	}
	return nil
}

func (s *experiments) query(ctx context.Context, q string, args ...any) ([]*store.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "listing experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "scanning experiment row: %w", err)
		}
		out = append(out, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "iterating experiments: %w", err)
	}
	return out, nil
}

func scanExperiment(row rowScanner) (*store.Experiment, error) {
	var exp store.Experiment
	var threshold float64
	var createdAt, updatedAt, startedAt, finishedAt string
	if err := row.Scan(
		&exp.ID,
		&exp.Name,
		&exp.SupportSetID,
		&exp.QuerySetID,
		&exp.Method,
		&threshold,
		&exp.Status,
		&exp.ParentExperimentID,
		&exp.Error,
		&exp.ResultsRef,
		&createdAt,
		&updatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	exp.Threshold = float32(threshold)
	exp.CreatedAt = parseTime(createdAt)
	exp.UpdatedAt = parseTime(updatedAt)
	exp.StartedAt = parseTime(startedAt)
	exp.FinishedAt = parseTime(finishedAt)
	return &exp, nil
}

type results CollectionStore

func (s *results) Put(ctx context.Context, res *store.ExperimentResults) error {
	if res.ExperimentID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "results: ExperimentID is required")
	}
	predictions, err := marshalJSON(res.Predictions)
	if err != nil {
		return err
	}
	summary, err := marshalJSON(res.Summary)
	if err != nil {
		return err
	}

	const q = `INSERT INTO experiment_results (experiment_id, predictions, summary, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(experiment_id) DO UPDATE SET
	predictions = excluded.predictions,
	summary = excluded.summary,
	created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, q, res.ExperimentID, predictions, summary, formatTime(res.CreatedAt)); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "putting results for experiment %s: %w", res.ExperimentID, err)
	}
	return nil
}

func (s *results) Get(ctx context.Context, experimentID string) (*store.ExperimentResults, error) {
	const q = `SELECT predictions, summary, created_at FROM experiment_results WHERE experiment_id = ?`

	var predictions, summary, createdAt string
	err := s.db.QueryRowContext(ctx, q, experimentID).Scan(&predictions, &summary, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("results for experiment", experimentID)
	}
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "getting results for experiment %s: %w", experimentID, err)
	}

	res := &store.ExperimentResults{ExperimentID: experimentID, CreatedAt: parseTime(createdAt)}
	if err := unmarshalJSON(predictions, &res.Predictions); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(summary, &res.Summary); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *results) Delete(ctx context.Context, experimentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM experiment_results WHERE experiment_id = ?`, experimentID); err != nil {
		return sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "deleting results for experiment %s: %w", experimentID, err)
	}
	return nil
}
