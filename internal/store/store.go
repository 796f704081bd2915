// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "context"

// Store groups the logical collections. Existence of referenced ids is
// checked by the services, not by the backend.
type Store interface {
	SupportSets() SupportSetStore
	QuerySets() QuerySetStore
	Experiments() ExperimentStore
	Results() ResultStore
	Tracking() TrackingStore
	Embeddings() EmbeddingStore
	Close() error
}

// SupportSetStore persists immutable support set versions.
type SupportSetStore interface {
	Create(ctx context.Context, set *SupportSet) error
	Get(ctx context.Context, id string) (*SupportSet, error)
	List(ctx context.Context, opts ListOpts) ([]*SupportSet, error)
	// ListLineage returns every version sharing lineageID, ordered by version.
	ListLineage(ctx context.Context, lineageID string) ([]*SupportSet, error)
	// MaxVersion returns the highest version in the lineage, or 0 if empty.
	MaxVersion(ctx context.Context, lineageID string) (int, error)
}

// QuerySetStore persists immutable query sets.
type QuerySetStore interface {
	Create(ctx context.Context, set *QuerySet) error
	Get(ctx context.Context, id string) (*QuerySet, error)
	List(ctx context.Context, opts ListOpts) ([]*QuerySet, error)
}

// ExperimentStore persists experiment metadata and status.
type ExperimentStore interface {
	Create(ctx context.Context, exp *Experiment) error
	Get(ctx context.Context, id string) (*Experiment, error)
	Update(ctx context.Context, exp *Experiment) error
	List(ctx context.Context, opts ListOpts) ([]*Experiment, error)
	// ListByStatus returns all experiments currently in status.
	ListByStatus(ctx context.Context, status ExperimentStatus) ([]*Experiment, error)
	Delete(ctx context.Context, id string) error
}

// ResultStore holds at most one result document per experiment.
type ResultStore interface {
	// Put replaces any existing results for the experiment.
	Put(ctx context.Context, results *ExperimentResults) error
	Get(ctx context.Context, experimentID string) (*ExperimentResults, error)
	// Delete is a no-op when the experiment has no results.
	Delete(ctx context.Context, experimentID string) error
}

// TrackingStore persists per-asset tracking records.
type TrackingStore interface {
	Get(ctx context.Context, assetID string) (*TrackingRecord, error)
	Put(ctx context.Context, record *TrackingRecord) error
	List(ctx context.Context) ([]*TrackingRecord, error)
}

// EmbeddingStore holds pre-computed asset embeddings.
type EmbeddingStore interface {
	Put(ctx context.Context, assetID string, embedding []float32) error
	Get(ctx context.Context, assetID string) ([]float32, error)
	Delete(ctx context.Context, assetIDs []string) error
}
