// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package experiment

import (
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// validTransitions defines allowed status transitions as an adjacency list.
// Terminal states are left only by an explicit re-run.
var validTransitions = map[store.ExperimentStatus]map[store.ExperimentStatus]bool{
	store.ExperimentStatusCreated: {
		store.ExperimentStatusRunning: true,
	},
	store.ExperimentStatusRunning: {
		store.ExperimentStatusCompleted: true,
		store.ExperimentStatusFailed:    true,
	},
	store.ExperimentStatusCompleted: {
		store.ExperimentStatusRunning: true,
	},
	store.ExperimentStatusFailed: {
		store.ExperimentStatusRunning: true,
	},
}

// ValidTransition returns true if moving from one status to another is allowed.
func ValidTransition(from, to store.ExperimentStatus) bool {
	allowed, exists := validTransitions[from][to]
	return exists && allowed
}

// transition moves exp to status or returns an invalid_state error leaving
// exp unchanged.
func transition(exp *store.Experiment, to store.ExperimentStatus) error {
	if !ValidTransition(exp.Status, to) {
		return sigilerr.With(
			sigilerr.Errorf(sigilerr.CodeExperimentStateInvalid, "invalid experiment status transition: %s -> %s", exp.Status, to),
			sigilerr.FieldExperimentID(exp.ID))
	}
	exp.Status = to
	return nil
}
