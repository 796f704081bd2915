// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Valid reports whether the status is a known experiment lifecycle state.
func (s ExperimentStatus) Valid() bool {
	switch s {
	case ExperimentStatusCreated, ExperimentStatusRunning, ExperimentStatusCompleted, ExperimentStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is an end state of a run.
func (s ExperimentStatus) Terminal() bool {
	return s == ExperimentStatusCompleted || s == ExperimentStatusFailed
}

// Validate checks that the SupportSet has all required fields set.
func (s SupportSet) Validate() error {
	if s.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "support set: ID is required")
	}
	if s.LineageID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "support set: LineageID is required")
	}
	if s.Version < 1 {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "support set: version must be >= 1, got %d", s.Version)
	}
	if s.CreatedAt.IsZero() {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "support set: CreatedAt is required")
	}
	return nil
}

// Validate checks that the QuerySet has all required fields set.
func (q QuerySet) Validate() error {
	if q.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "query set: ID is required")
	}
	if q.CreatedAt.IsZero() {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "query set: CreatedAt is required")
	}
	return nil
}

// Validate checks that the Experiment has all required fields set correctly.
func (e Experiment) Validate() error {
	if e.ID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "experiment: ID is required")
	}
	if e.SupportSetID == "" || e.QuerySetID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "experiment: support and query set IDs are required")
	}
	if !e.Status.Valid() {
		return sigilerr.Errorf(sigilerr.CodeStoreInvalidInput, "experiment: invalid status %q", e.Status)
	}
	if e.CreatedAt.IsZero() {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "experiment: CreatedAt is required")
	}
	return nil
}

// Validate checks that the TrackingRecord has all required fields set.
func (r TrackingRecord) Validate() error {
	if r.AssetID == "" {
		return sigilerr.New(sigilerr.CodeStoreInvalidInput, "tracking record: AssetID is required")
	}
	return nil
}
