// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package classify implements few-shot classification of query assets
// against the labeled examples of a support set.
package classify

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sigil-dev/fewshot/internal/embedding"
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Unknown is the label assigned when no class clears the threshold.
const Unknown = "Unknown"

// DefaultWorkers bounds concurrent embedding lookups when no limit is set.
const DefaultWorkers = 8

// Engine classifies query sets. It holds no state between calls.
type Engine struct {
	workers int
}

// NewEngine returns an Engine that resolves at most workers embeddings
// concurrently. workers <= 0 selects DefaultWorkers.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{workers: workers}
}

// ValidateThreshold rejects thresholds outside [0,1] and NaN.
func ValidateThreshold(threshold float32) error {
	if math.IsNaN(float64(threshold)) || threshold < 0 || threshold > 1 {
		return sigilerr.Errorf(sigilerr.CodeClassifyThresholdInvalid, "threshold must be in [0,1], got %v", threshold)
	}
	return nil
}

// Classify predicts a class for every asset of query. The first embedding
// failure cancels outstanding lookups and is returned unchanged.
func (e *Engine) Classify(
	ctx context.Context,
	support *store.SupportSet,
	query *store.QuerySet,
	method Method,
	threshold float32,
	src embedding.Provider,
) (map[string]store.Prediction, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, sigilerr.Errorf(sigilerr.CodeClassifyMethodInvalid, "unknown classification method %q", method)
	}

	classes, dims, err := e.resolveSupport(ctx, support, method, src)
	if err != nil {
		return nil, err
	}

	var (
		mu          sync.Mutex
		predictions = make(map[string]store.Prediction, len(query.AssetIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, assetID := range query.AssetIDs {
		g.Go(func() error {
			vec, err := src.Embed(gctx, assetID)
			if err != nil {
				return err
			}
			if len(vec) != dims {
				return sigilerr.New(sigilerr.CodeClassifyEmbeddingInvalid,
					"query embedding dimension does not match support set",
					sigilerr.FieldAssetID(assetID),
					sigilerr.Field("dims", len(vec)),
					sigilerr.Field("expected", dims))
			}

			p := Decide(ScoreClasses(vec, classes), threshold)
			mu.Lock()
			predictions[assetID] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return predictions, nil
}

// resolveSupport embeds every example of support. For MethodCentroid each
// class collapses to its mean vector.
func (e *Engine) resolveSupport(
	ctx context.Context,
	support *store.SupportSet,
	method Method,
	src embedding.Provider,
) (map[string][][]float32, int, error) {
	type ref struct {
		class string
		index int
		asset string
	}
	var refs []ref
	classes := make(map[string][][]float32, len(support.Classes))
	for class, assets := range support.Classes {
		classes[class] = make([][]float32, len(assets))
		for i, asset := range assets {
			refs = append(refs, ref{class: class, index: i, asset: asset})
		}
	}
	if len(refs) == 0 {
		return nil, 0, sigilerr.New(sigilerr.CodeClassifyEmbeddingInvalid, "support set has no examples",
			sigilerr.FieldSupportSetID(support.ID))
	}

	// Slots are pre-allocated per ref, so workers write disjoint indexes.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, r := range refs {
		g.Go(func() error {
			vec, err := src.Embed(gctx, r.asset)
			if err != nil {
				return err
			}
			classes[r.class][r.index] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	dims := len(classes[refs[0].class][refs[0].index])
	if dims == 0 {
		return nil, 0, sigilerr.New(sigilerr.CodeClassifyEmbeddingInvalid, "support embedding is empty",
			sigilerr.FieldAssetID(refs[0].asset))
	}
	for _, r := range refs {
		if n := len(classes[r.class][r.index]); n != dims {
			return nil, 0, sigilerr.New(sigilerr.CodeClassifyEmbeddingInvalid,
				"support embeddings have inconsistent dimensions",
				sigilerr.FieldAssetID(r.asset),
				sigilerr.Field("dims", n),
				sigilerr.Field("expected", dims))
		}
	}

	if method == MethodCentroid {
		for class, vecs := range classes {
			classes[class] = [][]float32{Centroid(vecs)}
		}
	}
	return classes, dims, nil
}

// Summarize aggregates predictions into per-class counts and mean scores.
func Summarize(predictions map[string]store.Prediction) store.Summary {
	s := store.Summary{
		Total:       len(predictions),
		ClassCounts: make(map[string]int),
	}
	if len(predictions) == 0 {
		return s
	}

	var conf, margin float64
	for _, p := range predictions {
		s.ClassCounts[p.PredictedClass]++
		if p.PredictedClass == Unknown {
			s.UnknownCount++
		}
		conf += float64(p.Confidence)
		margin += float64(p.Margin)
	}
	s.MeanConfidence = conf / float64(len(predictions))
	s.MeanMargin = margin / float64(len(predictions))
	return s
}
