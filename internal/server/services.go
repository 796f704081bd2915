// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/fewshot/internal/experiment"
	"github.com/sigil-dev/fewshot/internal/pipeline"
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/health"
	"github.com/sigil-dev/fewshot/pkg/types"
)

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be faked in tests.
type Services struct {
	supportSets SupportSetService
	querySets   QuerySetService
	experiments ExperimentService
	tracking    TrackingService
	embeddings  EmbeddingService
}

// NewServices creates a Services instance. Every service is required.
func NewServices(supportSets SupportSetService, querySets QuerySetService, experiments ExperimentService, tracking TrackingService, embeddings EmbeddingService) (*Services, error) {
	switch {
	case supportSets == nil:
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "support set service is required")
	case querySets == nil:
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "query set service is required")
	case experiments == nil:
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "experiment service is required")
	case tracking == nil:
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "tracking service is required")
	case embeddings == nil:
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "embedding service is required")
	}
	return &Services{
		supportSets: supportSets,
		querySets:   querySets,
		experiments: experiments,
		tracking:    tracking,
		embeddings:  embeddings,
	}, nil
}

// SupportSetService is implemented by supportset.Service.
type SupportSetService interface {
	Create(ctx context.Context, name string, classes map[string][]string) (*store.SupportSet, error)
	Clone(ctx context.Context, id string) (*store.SupportSet, error)
	Get(ctx context.Context, id string) (*store.SupportSet, error)
	List(ctx context.Context) ([]*store.SupportSet, error)
	Lineage(ctx context.Context, id string) ([]*store.SupportSet, error)
}

// QuerySetService is implemented by queryset.Service.
type QuerySetService interface {
	Create(ctx context.Context, name string, assetIDs []string) (*store.QuerySet, error)
	Get(ctx context.Context, id string) (*store.QuerySet, error)
	List(ctx context.Context) ([]*store.QuerySet, error)
}

// ExperimentService is implemented by experiment.Registry.
type ExperimentService interface {
	Create(ctx context.Context, req experiment.CreateRequest) (*store.Experiment, error)
	Get(ctx context.Context, id string) (*store.Experiment, error)
	List(ctx context.Context) ([]*store.Experiment, error)
	Run(ctx context.Context, id string) (*store.Experiment, error)
	Results(ctx context.Context, id string) (*store.ExperimentResults, error)
	Compare(ctx context.Context, ids []string) ([]experiment.Comparison, error)
	Delete(ctx context.Context, id string) error
	Lineage(ctx context.Context, id string) ([]*store.Experiment, error)
}

// TrackingService is implemented by pipeline.Tracker.
type TrackingService interface {
	Ingest(ctx context.Context, assetID string) (*store.TrackingRecord, error)
	Update(ctx context.Context, assetID string, stage types.Stage, status types.StageStatus, metadata map[string]any) (*store.TrackingRecord, error)
	Get(ctx context.Context, assetID string) (*store.TrackingRecord, error)
	Status(ctx context.Context) (map[types.Stage]int, error)
	Errors(ctx context.Context) ([]*store.TrackingRecord, error)
	Execute(ctx context.Context, assetID string, stage types.Stage) error
	Retry(ctx context.Context, assetID string) (*pipeline.RetryOutcome, error)
}

// EmbeddingService is implemented by embedding.Catalog.
type EmbeddingService interface {
	Put(ctx context.Context, assetID string, vec []float32) error
	Delete(ctx context.Context, assetIDs ...string) error
	Health() health.Metrics
}
