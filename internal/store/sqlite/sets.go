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
	_ store.SupportSetStore = (*supportSets)(nil)
	_ store.QuerySetStore   = (*querySets)(nil)
)

type supportSets CollectionStore

const supportSetColumns = `id, name, lineage_id, version, parent_version, classes, created_at`

func (s *supportSets) Create(ctx context.Context, set *store.SupportSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	classes, err := marshalJSON(set.Classes)
	if err != nil {
		return err
	}

	const q = `INSERT INTO support_sets (` + supportSetColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		set.ID,
		set.Name,
		set.LineageID,
		set.Version,
		set.ParentVersion,
		classes,
		formatTime(set.CreatedAt),
	)
	if err != nil {
		return classifyExecErr(err, "creating support set %s", set.ID)
	}
	return nil
}

func (s *supportSets) Get(ctx context.Context, id string) (*store.SupportSet, error) {
	const q = `SELECT ` + supportSetColumns + ` FROM support_sets WHERE id = ?`
	set, err := scanSupportSet(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("support set", id)
	}
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "getting support set %s: %w", id, err)
	}
	return set, nil
}

func (s *supportSets) List(ctx context.Context, opts store.ListOpts) ([]*store.SupportSet, error) {
	limit, offset := limitOffset(opts)
	const q = `SELECT ` + supportSetColumns + ` FROM support_sets ORDER BY created_at, id LIMIT ? OFFSET ?`
	return s.query(ctx, q, limit, offset)
}

func (s *supportSets) ListLineage(ctx context.Context, lineageID string) ([]*store.SupportSet, error) {
	const q = `SELECT ` + supportSetColumns + ` FROM support_sets WHERE lineage_id = ? ORDER BY version`
	return s.query(ctx, q, lineageID)
}

func (s *supportSets) MaxVersion(ctx context.Context, lineageID string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM support_sets WHERE lineage_id = ?`, lineageID,
	).Scan(&v)
	if err != nil {
		return 0, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "reading max version of lineage %s: %w", lineageID, err)
	}
	return v, nil
}

func (s *supportSets) query(ctx context.Context, q string, args ...any) ([]*store.SupportSet, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "listing support sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.SupportSet
	for rows.Next() {
		set, err := scanSupportSet(rows)
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "scanning support set row: %w", err)
		}
		out = append(out, set)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "iterating support sets: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupportSet(row rowScanner) (*store.SupportSet, error) {
	var set store.SupportSet
	var classes, createdAt string
	if err := row.Scan(
		&set.ID,
		&set.Name,
		&set.LineageID,
		&set.Version,
		&set.ParentVersion,
		&classes,
		&createdAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(classes, &set.Classes); err != nil {
		return nil, err
	}
	set.CreatedAt = parseTime(createdAt)
	return &set, nil
}

type querySets CollectionStore

func (s *querySets) Create(ctx context.Context, set *store.QuerySet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	assets, err := marshalJSON(set.AssetIDs)
	if err != nil {
		return err
	}

	const q = `INSERT INTO query_sets (id, name, asset_ids, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, set.ID, set.Name, assets, formatTime(set.CreatedAt)); err != nil {
		return classifyExecErr(err, "creating query set %s", set.ID)
	}
	return nil
}

func (s *querySets) Get(ctx context.Context, id string) (*store.QuerySet, error) {
	const q = `SELECT id, name, asset_ids, created_at FROM query_sets WHERE id = ?`
	set, err := scanQuerySet(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("query set", id)
	}
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "getting query set %s: %w", id, err)
	}
	return set, nil
}

func (s *querySets) List(ctx context.Context, opts store.ListOpts) ([]*store.QuerySet, error) {
	limit, offset := limitOffset(opts)
	const q = `SELECT id, name, asset_ids, created_at FROM query_sets ORDER BY created_at, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "listing query sets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.QuerySet
	for rows.Next() {
		set, err := scanQuerySet(rows)
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "scanning query set row: %w", err)
		}
		out = append(out, set)
	}
	if err := rows.Err(); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreDatabaseFailure, "iterating query sets: %w", err)
	}
	return out, nil
}

func scanQuerySet(row rowScanner) (*store.QuerySet, error) {
	var set store.QuerySet
	var assets, createdAt string
	if err := row.Scan(&set.ID, &set.Name, &assets, &createdAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(assets, &set.AssetIDs); err != nil {
		return nil, err
	}
	set.CreatedAt = parseTime(createdAt)
	return &set, nil
}
