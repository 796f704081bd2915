// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"maps"
	"slices"
	"time"

	"github.com/sigil-dev/fewshot/pkg/types"
)

// --- Support and query sets ---

// SupportSet is an immutable, versioned mapping from class label to the
// asset ids of its labeled examples.
type SupportSet struct {
	ID   string
	Name string
	// LineageID is the id of the root version; all clones share it.
	LineageID     string
	Version       int
	ParentVersion string // empty for a root version
	Classes       map[string][]string
	CreatedAt     time.Time
}

// ClassNames returns the class labels in lexicographic order.
func (s *SupportSet) ClassNames() []string {
	return slices.Sorted(maps.Keys(s.Classes))
}

// Clone returns a deep copy of s.
func (s *SupportSet) Clone() *SupportSet {
	out := *s
	out.Classes = make(map[string][]string, len(s.Classes))
	for class, refs := range s.Classes {
		out.Classes[class] = slices.Clone(refs)
	}
	return &out
}

// QuerySet is an ordered set of distinct asset ids to classify.
type QuerySet struct {
	ID        string
	Name      string
	AssetIDs  []string
	CreatedAt time.Time
}

// Clone returns a deep copy of q.
func (q *QuerySet) Clone() *QuerySet {
	out := *q
	out.AssetIDs = slices.Clone(q.AssetIDs)
	return &out
}

// --- Experiments ---

// ExperimentStatus represents the lifecycle state of an experiment.
type ExperimentStatus string

const (
	ExperimentStatusCreated   ExperimentStatus = "created"
	ExperimentStatusRunning   ExperimentStatus = "running"
	ExperimentStatusCompleted ExperimentStatus = "completed"
	ExperimentStatusFailed    ExperimentStatus = "failed"
)

// Experiment binds a support set, a query set and classification
// parameters. ParentExperimentID is an audit back-reference only.
type Experiment struct {
	ID                 string
	Name               string
	SupportSetID       string
	QuerySetID         string
	Method             string
	Threshold          float32
	Status             ExperimentStatus
	ParentExperimentID string
	Error              string
	ResultsRef         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StartedAt          time.Time
	FinishedAt         time.Time
}

// Clone returns a copy of e.
func (e *Experiment) Clone() *Experiment {
	out := *e
	return &out
}

// Prediction is the classification outcome for a single asset.
type Prediction struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float32 `json:"confidence"`
	Margin         float32 `json:"margin"`
}

// Summary aggregates the predictions of one experiment run.
type Summary struct {
	Total          int            `json:"total"`
	ClassCounts    map[string]int `json:"class_counts"`
	UnknownCount   int            `json:"unknown_count"`
	MeanConfidence float64        `json:"mean_confidence"`
	MeanMargin     float64        `json:"mean_margin"`
}

// ExperimentResults is the single result document owned by an experiment.
type ExperimentResults struct {
	ExperimentID string
	Predictions  map[string]Prediction
	Summary      Summary
	CreatedAt    time.Time
}

// Clone returns a deep copy of r.
func (r *ExperimentResults) Clone() *ExperimentResults {
	out := *r
	out.Predictions = maps.Clone(r.Predictions)
	out.Summary.ClassCounts = maps.Clone(r.Summary.ClassCounts)
	return &out
}

// --- Tracking ---

// StageEntry is the last reported state of one pipeline stage.
type StageEntry struct {
	Status    types.StageStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// StageError is one entry of a tracking record's append-only error list.
type StageError struct {
	Stage     types.Stage `json:"stage"`
	Message   string      `json:"error_message"`
	Timestamp time.Time   `json:"timestamp"`
}

// TrackingRecord follows one asset through the processing pipeline.
type TrackingRecord struct {
	AssetID      string
	Stages       map[types.Stage]StageEntry
	CurrentStage types.Stage
	Errors       []StageError
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTrackingRecord returns an empty record for assetID.
func NewTrackingRecord(assetID string, now time.Time) *TrackingRecord {
	return &TrackingRecord{
		AssetID:      assetID,
		Stages:       make(map[types.Stage]StageEntry),
		CurrentStage: types.StageNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy of r. Metadata maps are copied one level deep.
func (r *TrackingRecord) Clone() *TrackingRecord {
	out := *r
	out.Stages = make(map[types.Stage]StageEntry, len(r.Stages))
	for st, entry := range r.Stages {
		entry.Metadata = maps.Clone(entry.Metadata)
		out.Stages[st] = entry
	}
	out.Errors = slices.Clone(r.Errors)
	return &out
}

// ListOpts controls pagination for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}
