// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"errors"
	"path/filepath"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", func(dataPath string, vectorDims int) (store.Store, error) {
		return Open(dataPath, vectorDims)
	})
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store with two SQLite files: fewshot.db for the
// collections and vectors.db for the sqlite-vec embedding table.
type Store struct {
	collections *CollectionStore
	embeddings  *EmbeddingStore
}

// Open opens (or creates) both databases under dataPath.
func Open(dataPath string, vectorDims int) (*Store, error) {
	cs, err := NewCollectionStore(filepath.Join(dataPath, "fewshot.db"))
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "creating collection store")
	}

	es, err := NewEmbeddingStore(filepath.Join(dataPath, "vectors.db"), vectorDims)
	if err != nil {
		_ = cs.Close()
		return nil, sigilerr.Wrapf(err, sigilerr.CodeStoreDatabaseFailure, "creating embedding store")
	}

	return &Store{collections: cs, embeddings: es}, nil
}

func (s *Store) SupportSets() store.SupportSetStore { return (*supportSets)(s.collections) }
func (s *Store) QuerySets() store.QuerySetStore     { return (*querySets)(s.collections) }
func (s *Store) Experiments() store.ExperimentStore { return (*experiments)(s.collections) }
func (s *Store) Results() store.ResultStore         { return (*results)(s.collections) }
func (s *Store) Tracking() store.TrackingStore      { return (*tracking)(s.collections) }
func (s *Store) Embeddings() store.EmbeddingStore   { return s.embeddings }

// Close closes both databases.
func (s *Store) Close() error {
	return errors.Join(s.collections.Close(), s.embeddings.Close())
}
