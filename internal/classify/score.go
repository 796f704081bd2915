// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package classify

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/sigil-dev/fewshot/internal/store"
)

// Cosine returns dot(a,b)/(|a|*|b|) clamped to [-1,1]. A zero-norm vector
// scores 0. a and b must have equal length.
func Cosine(a, b []float32) float32 {
	x := blas32.Vector{N: len(a), Inc: 1, Data: a}
	y := blas32.Vector{N: len(b), Inc: 1, Data: b}

	na, nb := blas32.Nrm2(x), blas32.Nrm2(y)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := blas32.Dot(x, y) / (na * nb)
	return float32(math.Max(-1, math.Min(1, float64(sim))))
}

// Centroid returns the element-wise mean of vecs.
func Centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float32, len(vecs[0]))
	dst := blas32.Vector{N: len(out), Inc: 1, Data: out}
	for _, v := range vecs {
		blas32.Axpy(1, blas32.Vector{N: len(v), Inc: 1, Data: v}, dst)
	}
	blas32.Scal(1/float32(len(vecs)), dst)
	return out
}

// ScoreClasses scores query against every class. For MethodCosine each
// class holds its example vectors and the score is the maximum similarity;
// for MethodCentroid each class holds a single centroid vector.
func ScoreClasses(query []float32, classes map[string][][]float32) map[string]float32 {
	scores := make(map[string]float32, len(classes))
	for label, vecs := range classes {
		best := float32(math.Inf(-1))
		for _, v := range vecs {
			if s := Cosine(query, v); s > best {
				best = s
			}
		}
		scores[label] = best
	}
	return scores
}

// Decide picks the best class from scores. Ties go to the lexicographically
// smallest label. Margin is best minus runner-up; with a single class the
// runner-up is 0. A best score below threshold yields Unknown.
func Decide(scores map[string]float32, threshold float32) store.Prediction {
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	if len(labels) == 0 {
		return store.Prediction{PredictedClass: Unknown}
	}

	bestLabel := labels[0]
	best := scores[bestLabel]
	for _, label := range labels[1:] {
		if scores[label] > best {
			bestLabel, best = label, scores[label]
		}
	}

	var second float32
	if len(labels) > 1 {
		second = float32(math.Inf(-1))
		for _, label := range labels {
			if label != bestLabel && scores[label] > second {
				second = scores[label]
			}
		}
	}

	p := store.Prediction{
		PredictedClass: bestLabel,
		Confidence:     best,
		Margin:         best - second,
	}
	if best < threshold {
		p.PredictedClass = Unknown
	}
	return p
}
