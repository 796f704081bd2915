// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"strings"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Stage identifies a step in an asset's processing pipeline.
type Stage string

const (
	// StageNone is the current stage of an asset that has not completed any stage.
	StageNone Stage = "none"
	// StageUploaded marks the asset bytes as stored.
	StageUploaded Stage = "uploaded"
	// StageAnnotated marks the asset as labeled or described.
	StageAnnotated Stage = "annotated"
	// StagePreprocessed marks features as extracted.
	StagePreprocessed Stage = "preprocessed"
	// StageClassified marks the asset as classified.
	StageClassified Stage = "classified"
)

// Stages lists the pipeline stages in their intended order.
var Stages = []Stage{StageUploaded, StageAnnotated, StagePreprocessed, StageClassified}

// Valid reports whether the stage is a known pipeline stage. StageNone is
// not reportable and is therefore not valid.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Index returns the position of s in Stages, or -1 for StageNone and
// unknown stages.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStage parses a case-insensitive stage name.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", sigilerr.Errorf(sigilerr.CodeTrackingUpdateInvalid,
			"invalid stage %q: must be one of [uploaded, annotated, preprocessed, classified]", s)
	}
	return st, nil
}
