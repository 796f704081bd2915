// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// StageStatus is the outcome reported for a single pipeline stage.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusProcessing StageStatus = "processing"
	StageStatusComplete   StageStatus = "complete"
	StageStatusError      StageStatus = "error"
)

// Valid reports whether s is a recognized stage status.
func (s StageStatus) Valid() bool {
	switch s {
	case StageStatusPending, StageStatusProcessing, StageStatusComplete, StageStatusError:
		return true
	default:
		return false
	}
}

// ParseStageStatus parses a case-insensitive string into a StageStatus.
func ParseStageStatus(s string) (StageStatus, error) {
	st := StageStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeTrackingUpdateInvalid,
			"invalid stage status %q: must be one of [pending, processing, complete, error]", s)
	}
	return st, nil
}
