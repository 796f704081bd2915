// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"time"

	"github.com/sigil-dev/fewshot/internal/store"
	"github.com/sigil-dev/fewshot/pkg/types"
)

// SupportSet is the wire form of a support set version.
type SupportSet struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	LineageID     string              `json:"lineage_id"`
	Version       int                 `json:"version"`
	ParentVersion string              `json:"parent_version,omitempty"`
	Classes       map[string][]string `json:"classes"`
	CreatedAt     time.Time           `json:"created_at"`
}

// QuerySet is the wire form of a query set.
type QuerySet struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AssetIDs  []string  `json:"asset_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// Experiment is the wire form of an experiment.
type Experiment struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	SupportSetID       string     `json:"support_set_id"`
	QuerySetID         string     `json:"query_set_id"`
	Method             string     `json:"method"`
	Threshold          float32    `json:"threshold"`
	Status             string     `json:"status"`
	ParentExperimentID string     `json:"parent_experiment_id,omitempty"`
	Error              string     `json:"error,omitempty"`
	ResultsRef         string     `json:"results_ref,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
}

// ExperimentResults is the wire form of a completed run's results.
type ExperimentResults struct {
	ExperimentID string                      `json:"experiment_id"`
	Predictions  map[string]store.Prediction `json:"predictions"`
	Summary      store.Summary               `json:"summary"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// TrackingRecord is the wire form of an asset's pipeline record.
type TrackingRecord struct {
	AssetID      string                           `json:"asset_id"`
	CurrentStage types.Stage                      `json:"current_stage"`
	Stages       map[types.Stage]store.StageEntry `json:"stages"`
	Errors       []store.StageError               `json:"errors"`
	CreatedAt    time.Time                        `json:"created_at"`
	UpdatedAt    time.Time                        `json:"updated_at"`
}

func toSupportSet(s *store.SupportSet) SupportSet {
	return SupportSet{
		ID:            s.ID,
		Name:          s.Name,
		LineageID:     s.LineageID,
		Version:       s.Version,
		ParentVersion: s.ParentVersion,
		Classes:       s.Classes,
		CreatedAt:     s.CreatedAt,
	}
}

func toSupportSets(sets []*store.SupportSet) []SupportSet {
	out := make([]SupportSet, 0, len(sets))
	for _, s := range sets {
		out = append(out, toSupportSet(s))
	}
	return out
}

func toQuerySet(q *store.QuerySet) QuerySet {
	return QuerySet{ID: q.ID, Name: q.Name, AssetIDs: q.AssetIDs, CreatedAt: q.CreatedAt}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toExperiment(e *store.Experiment) Experiment {
	return Experiment{
		ID:                 e.ID,
		Name:               e.Name,
		SupportSetID:       e.SupportSetID,
		QuerySetID:         e.QuerySetID,
		Method:             e.Method,
		Threshold:          e.Threshold,
		Status:             string(e.Status),
		ParentExperimentID: e.ParentExperimentID,
		Error:              e.Error,
		ResultsRef:         e.ResultsRef,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		StartedAt:          optionalTime(e.StartedAt),
		FinishedAt:         optionalTime(e.FinishedAt),
	}
}

func toExperiments(exps []*store.Experiment) []Experiment {
	out := make([]Experiment, 0, len(exps))
	for _, e := range exps {
		out = append(out, toExperiment(e))
	}
	return out
}

func toTrackingRecord(r *store.TrackingRecord) TrackingRecord {
	errs := r.Errors
	if errs == nil {
		errs = []store.StageError{}
	}
	return TrackingRecord{
		AssetID:      r.AssetID,
		CurrentStage: r.CurrentStage,
		Stages:       r.Stages,
		Errors:       errs,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
