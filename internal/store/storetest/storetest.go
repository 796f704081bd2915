// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package storetest holds a conformance suite shared by every store.Store
// backend. It is intended for use in tests only.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises every collection of the store returned by newStore. Each
// subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("SupportSets", func(t *testing.T) { testSupportSets(t, newStore(t)) })
	t.Run("QuerySets", func(t *testing.T) { testQuerySets(t, newStore(t)) })
	t.Run("Experiments", func(t *testing.T) { testExperiments(t, newStore(t)) })
	t.Run("Results", func(t *testing.T) { testResults(t, newStore(t)) })
	t.Run("Tracking", func(t *testing.T) { testTracking(t, newStore(t)) })
	t.Run("Embeddings", func(t *testing.T) { testEmbeddings(t, newStore(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSupportSets(t *testing.T, s store.Store) {
	ctx := context.Background()
	sets := s.SupportSets()

	root := &store.SupportSet{
		ID:        "ss-1",
		Name:      "birds",
		LineageID: "ss-1",
		Version:   1,
		Classes:   map[string][]string{"class_0": {"img1", "img2"}, "class_1": {"img3"}},
		CreatedAt: base,
	}
	require.NoError(t, sets.Create(ctx, root))

	got, err := sets.Get(ctx, "ss-1")
	require.NoError(t, err)
	assert.Equal(t, root.Classes, got.Classes)
	assert.Equal(t, 1, got.Version)
	assert.Empty(t, got.ParentVersion)
	assert.True(t, root.CreatedAt.Equal(got.CreatedAt))

	// Mutating the returned copy must not leak into the store.
	got.Classes["class_0"][0] = "mutated"
	again, err := sets.Get(ctx, "ss-1")
	require.NoError(t, err)
	assert.Equal(t, "img1", again.Classes["class_0"][0])

	child := &store.SupportSet{
		ID:            "ss-2",
		Name:          "birds",
		LineageID:     "ss-1",
		Version:       2,
		ParentVersion: "ss-1",
		Classes:       map[string][]string{"class_0": {"img1"}},
		CreatedAt:     base.Add(time.Second),
	}
	require.NoError(t, sets.Create(ctx, child))

	dup := child.Clone()
	dup.ID = "ss-3"
	err = sets.Create(ctx, dup)
	require.Error(t, err, "duplicate (lineage, version) must be rejected")
	assert.True(t, sigilerr.IsConflict(err))

	maxVersion, err := sets.MaxVersion(ctx, "ss-1")
	require.NoError(t, err)
	assert.Equal(t, 2, maxVersion)

	maxVersion, err = sets.MaxVersion(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, maxVersion)

	lineage, err := sets.ListLineage(ctx, "ss-1")
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, "ss-1", lineage[0].ID)
	assert.Equal(t, "ss-2", lineage[1].ID)

	all, err := sets.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := sets.List(ctx, store.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "ss-2", limited[0].ID)

	_, err = sets.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, sigilerr.IsNotFound(err))
}

func testQuerySets(t *testing.T, s store.Store) {
	ctx := context.Background()
	sets := s.QuerySets()

	qs := &store.QuerySet{ID: "qs-1", Name: "batch", AssetIDs: []string{"b", "a", "c"}, CreatedAt: base}
	require.NoError(t, sets.Create(ctx, qs))

	got, err := sets.Get(ctx, "qs-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, got.AssetIDs, "order must be preserved")

	err = sets.Create(ctx, qs)
	require.Error(t, err)
	assert.True(t, sigilerr.IsConflict(err))

	list, err := sets.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = sets.Get(ctx, "missing")
	assert.True(t, sigilerr.IsNotFound(err))
}

func newExperiment(id string, created time.Time) *store.Experiment {
	return &store.Experiment{
		ID:           id,
		Name:         "exp " + id,
		SupportSetID: "ss-1",
		QuerySetID:   "qs-1",
		Method:       "cosine",
		Threshold:    0.5,
		Status:       store.ExperimentStatusCreated,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func testExperiments(t *testing.T, s store.Store) {
	ctx := context.Background()
	exps := s.Experiments()

	e1 := newExperiment("exp-1", base)
	e2 := newExperiment("exp-2", base.Add(time.Second))
	e2.ParentExperimentID = "exp-1"
	require.NoError(t, exps.Create(ctx, e1))
	require.NoError(t, exps.Create(ctx, e2))

	got, err := exps.Get(ctx, "exp-2")
	require.NoError(t, err)
	assert.Equal(t, "exp-1", got.ParentExperimentID)
	assert.InDelta(t, 0.5, got.Threshold, 1e-6)

	got.Status = store.ExperimentStatusFailed
	got.Error = "embedding unavailable"
	got.StartedAt = base.Add(time.Minute)
	got.FinishedAt = base.Add(2 * time.Minute)
	require.NoError(t, exps.Update(ctx, got))

	got, err = exps.Get(ctx, "exp-2")
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusFailed, got.Status)
	assert.Equal(t, "embedding unavailable", got.Error)
	assert.True(t, base.Add(2*time.Minute).Equal(got.FinishedAt))

	failed, err := exps.ListByStatus(ctx, store.ExperimentStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "exp-2", failed[0].ID)

	all, err := exps.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "exp-1", all[0].ID)

	require.NoError(t, exps.Delete(ctx, "exp-1"))
	_, err = exps.Get(ctx, "exp-1")
	assert.True(t, sigilerr.IsNotFound(err))

	err = exps.Delete(ctx, "exp-1")
	assert.True(t, sigilerr.IsNotFound(err))

	err = exps.Update(ctx, newExperiment("ghost", base))
	assert.True(t, sigilerr.IsNotFound(err))
}

func testResults(t *testing.T, s store.Store) {
	ctx := context.Background()
	res := s.Results()

	first := &store.ExperimentResults{
		ExperimentID: "exp-1",
		Predictions: map[string]store.Prediction{
			"img1": {PredictedClass: "class_0", Confidence: 1, Margin: 1},
			"img2": {PredictedClass: "Unknown", Confidence: 0.4, Margin: 0.1},
		},
		Summary: store.Summary{
			Total:          2,
			ClassCounts:    map[string]int{"class_0": 1, "Unknown": 1},
			UnknownCount:   1,
			MeanConfidence: 0.7,
		},
		CreatedAt: base,
	}
	require.NoError(t, res.Put(ctx, first))

	second := &store.ExperimentResults{
		ExperimentID: "exp-1",
		Predictions:  map[string]store.Prediction{"img3": {PredictedClass: "class_1", Confidence: 0.9, Margin: 0.2}},
		Summary:      store.Summary{Total: 1, ClassCounts: map[string]int{"class_1": 1}, MeanConfidence: 0.9},
		CreatedAt:    base.Add(time.Minute),
	}
	require.NoError(t, res.Put(ctx, second))

	got, err := res.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Len(t, got.Predictions, 1, "put must replace, never append")
	assert.Equal(t, "class_1", got.Predictions["img3"].PredictedClass)
	assert.Equal(t, 1, got.Summary.ClassCounts["class_1"])

	require.NoError(t, res.Delete(ctx, "exp-1"))
	require.NoError(t, res.Delete(ctx, "exp-1"), "deleting absent results is a no-op")
	_, err = res.Get(ctx, "exp-1")
	assert.True(t, sigilerr.IsNotFound(err))
}

func testTracking(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr := s.Tracking()

	rec := store.NewTrackingRecord("img-1", base)
	rec.Stages[types.StageUploaded] = store.StageEntry{Status: types.StageStatusComplete, Timestamp: base}
	rec.Stages[types.StageAnnotated] = store.StageEntry{
		Status:    types.StageStatusError,
		Timestamp: base.Add(time.Second),
		Metadata:  map[string]any{"msg": "model init failed"},
	}
	rec.CurrentStage = types.StageUploaded
	rec.Errors = append(rec.Errors, store.StageError{Stage: types.StageAnnotated, Message: "model init failed", Timestamp: base.Add(time.Second)})
	require.NoError(t, tr.Put(ctx, rec))

	got, err := tr.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, types.StageUploaded, got.CurrentStage)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "model init failed", got.Errors[0].Message)
	assert.Equal(t, "model init failed", got.Stages[types.StageAnnotated].Metadata["msg"])

	require.NoError(t, tr.Put(ctx, store.NewTrackingRecord("img-0", base)))
	all, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "img-0", all[0].AssetID)
	assert.Equal(t, types.StageNone, all[0].CurrentStage)

	_, err = tr.Get(ctx, "missing")
	assert.True(t, sigilerr.IsNotFound(err))
}

func testEmbeddings(t *testing.T, s store.Store) {
	ctx := context.Background()
	emb := s.Embeddings()

	vec := make([]float32, Dimensions)
	vec[0] = 1
	require.NoError(t, emb.Put(ctx, "img-1", vec))

	got, err := emb.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	vec2 := make([]float32, Dimensions)
	vec2[1] = 0.5
	require.NoError(t, emb.Put(ctx, "img-1", vec2), "put must upsert")
	got, err = emb.Get(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, vec2, got)

	require.NoError(t, emb.Delete(ctx, []string{"img-1"}))
	_, err = emb.Get(ctx, "img-1")
	require.Error(t, err)
	assert.True(t, sigilerr.IsNotFound(err), fmt.Sprintf("got %v", err))
}

// Dimensions is the vector size the conformance suite stores; backends
// with fixed dimensions must be opened with it.
const Dimensions = 4
