// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memory provides an in-process implementation of store.Store.
// Every read and write copies the value so callers never share state with
// the backend.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func init() {
	store.RegisterBackend("memory", func(_ string, _ int) (store.Store, error) {
		return New(), nil
	})
}

// Compile-time interface checks.
var (
	_ store.Store           = (*Store)(nil)
	_ store.SupportSetStore = (*supportSets)(nil)
	_ store.QuerySetStore   = (*querySets)(nil)
	_ store.ExperimentStore = (*experiments)(nil)
	_ store.ResultStore     = (*results)(nil)
	_ store.TrackingStore   = (*tracking)(nil)
	_ store.EmbeddingStore  = (*embeddings)(nil)
)

// Store keeps all collections in maps guarded by a single RWMutex.
type Store struct {
	mu          sync.RWMutex
	supportSets map[string]*store.SupportSet
	querySets   map[string]*store.QuerySet
	experiments map[string]*store.Experiment
	results     map[string]*store.ExperimentResults
	tracking    map[string]*store.TrackingRecord
	embeddings  map[string][]float32
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		supportSets: make(map[string]*store.SupportSet),
		querySets:   make(map[string]*store.QuerySet),
		experiments: make(map[string]*store.Experiment),
		results:     make(map[string]*store.ExperimentResults),
		tracking:    make(map[string]*store.TrackingRecord),
		embeddings:  make(map[string][]float32),
	}
}

func (s *Store) SupportSets() store.SupportSetStore { return (*supportSets)(s) }
func (s *Store) QuerySets() store.QuerySetStore     { return (*querySets)(s) }
func (s *Store) Experiments() store.ExperimentStore { return (*experiments)(s) }
func (s *Store) Results() store.ResultStore         { return (*results)(s) }
func (s *Store) Tracking() store.TrackingStore      { return (*tracking)(s) }
func (s *Store) Embeddings() store.EmbeddingStore   { return (*embeddings)(s) }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func notFound(kind, id string) error {
	return sigilerr.Errorf(sigilerr.CodeStoreEntityNotFound, "%s %s not found", kind, id)
}

func conflict(kind, id string) error {
	return sigilerr.Errorf(sigilerr.CodeStoreConflict, "%s %s already exists", kind, id)
}

// page applies ListOpts to an already ordered slice.
func page[T any](items []T, opts store.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// --- support sets ---

type supportSets Store

func (s *supportSets) Create(_ context.Context, set *store.SupportSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.supportSets[set.ID]; ok {
		return conflict("support set", set.ID)
	}
	for _, existing := range s.supportSets {
		if existing.LineageID == set.LineageID && existing.Version == set.Version {
			return sigilerr.Errorf(sigilerr.CodeStoreConflict,
				"support set lineage %s already has version %d", set.LineageID, set.Version)
		}
	}
	s.supportSets[set.ID] = set.Clone()
	return nil
}

func (s *supportSets) Get(_ context.Context, id string) (*store.SupportSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.supportSets[id]
	if !ok {
		return nil, notFound("support set", id)
	}
	return set.Clone(), nil
}

func (s *supportSets) List(_ context.Context, opts store.ListOpts) ([]*store.SupportSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.SupportSet, 0, len(s.supportSets))
	for _, set := range s.supportSets {
		out = append(out, set.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

func (s *supportSets) ListLineage(_ context.Context, lineageID string) ([]*store.SupportSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.SupportSet
	for _, set := range s.supportSets {
		if set.LineageID == lineageID {
			out = append(out, set.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *supportSets) MaxVersion(_ context.Context, lineageID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maxVersion := 0
	for _, set := range s.supportSets {
		if set.LineageID == lineageID && set.Version > maxVersion {
			maxVersion = set.Version
		}
	}
	return maxVersion, nil
}

// --- query sets ---

type querySets Store

func (s *querySets) Create(_ context.Context, set *store.QuerySet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.querySets[set.ID]; ok {
		return conflict("query set", set.ID)
	}
	s.querySets[set.ID] = set.Clone()
	return nil
}

func (s *querySets) Get(_ context.Context, id string) (*store.QuerySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.querySets[id]
	if !ok {
		return nil, notFound("query set", id)
	}
	return set.Clone(), nil
}

func (s *querySets) List(_ context.Context, opts store.ListOpts) ([]*store.QuerySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.QuerySet, 0, len(s.querySets))
	for _, set := range s.querySets {
		out = append(out, set.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

// --- experiments ---

type experiments Store

func (s *experiments) Create(_ context.Context, exp *store.Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[exp.ID]; ok {
		return conflict("experiment", exp.ID)
	}
	s.experiments[exp.ID] = exp.Clone()
	return nil
}

func (s *experiments) Get(_ context.Context, id string) (*store.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.experiments[id]
	if !ok {
		return nil, notFound("experiment", id)
	}
	return exp.Clone(), nil
}

func (s *experiments) Update(_ context.Context, exp *store.Experiment) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[exp.ID]; !ok {
		return notFound("experiment", exp.ID)
	}
	s.experiments[exp.ID] = exp.Clone()
	return nil
}

func (s *experiments) List(_ context.Context, opts store.ListOpts) ([]*store.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Experiment, 0, len(s.experiments))
	for _, exp := range s.experiments {
		out = append(out, exp.Clone())
	}
	sortExperiments(out)
	return page(out, opts), nil
}

func (s *experiments) ListByStatus(_ context.Context, status store.ExperimentStatus) ([]*store.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*store.Experiment
	for _, exp := range s.experiments {
		if exp.Status == status {
			out = append(out, exp.Clone())
		}
	}
	sortExperiments(out)
	return out, nil
}

func (s *experiments) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[id]; !ok {
		return notFound("experiment", id)
	}
	delete(s.experiments, id)
	return nil
}

func sortExperiments(out []*store.Experiment) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

// --- results ---

type results Store

func (s *results) Put(_ context.Context, res *store.ExperimentResults) error {
	if res.ExperimentID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "results: ExperimentID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[res.ExperimentID] = res.Clone()
	return nil
}

func (s *results) Get(_ context.Context, experimentID string) (*store.ExperimentResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[experimentID]
	if !ok {
		return nil, notFound("results for experiment", experimentID)
	}
	return res.Clone(), nil
}

func (s *results) Delete(_ context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.results, experimentID)
	return nil
}

// --- tracking ---

type tracking Store

func (s *tracking) Get(_ context.Context, assetID string) (*store.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tracking[assetID]
	if !ok {
		return nil, notFound("tracking record", assetID)
	}
	return rec.Clone(), nil
}

func (s *tracking) Put(_ context.Context, rec *store.TrackingRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracking[rec.AssetID] = rec.Clone()
	return nil
}

func (s *tracking) List(_ context.Context) ([]*store.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.TrackingRecord, 0, len(s.tracking))
	for _, rec := range s.tracking {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

// --- embeddings ---

type embeddings Store

func (s *embeddings) Put(_ context.Context, assetID string, embedding []float32) error {
	if assetID == "" || len(embedding) == 0 {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "embedding: asset ID and vector are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[assetID] = slices.Clone(embedding)
	return nil
}

func (s *embeddings) Get(_ context.Context, assetID string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vec, ok := s.embeddings[assetID]
	if !ok {
		return nil, notFound("embedding", assetID)
	}
	return slices.Clone(vec), nil
}

func (s *embeddings) Delete(_ context.Context, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range assetIDs {
		delete(s.embeddings, id)
	}
	return nil
}
