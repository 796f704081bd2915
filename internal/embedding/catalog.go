// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/health"
)

// Catalog manages the pre-computed vectors held by the store and keeps the
// provider chain in front of it consistent.
type Catalog struct {
	vectors store.EmbeddingStore
	cache   *CachedProvider  // nil when caching is disabled
	guard   *GuardedProvider // nil when no health tracking is wired
}

// NewCatalog returns a Catalog over vectors. cache and guard may be nil.
func NewCatalog(vectors store.EmbeddingStore, cache *CachedProvider, guard *GuardedProvider) *Catalog {
	return &Catalog{vectors: vectors, cache: cache, guard: guard}
}

// Put stores the vector for assetID, replacing any previous one, and drops
// the cached copy.
func (c *Catalog) Put(ctx context.Context, assetID string, vec []float32) error {
	if strings.TrimSpace(assetID) == "" {
		return sigilerr.New(sigilerr.CodeEmbeddingRequestInvalid, "asset id is required")
	}
	if len(vec) == 0 {
		return sigilerr.New(sigilerr.CodeEmbeddingRequestInvalid, "embedding must not be empty", sigilerr.FieldAssetID(assetID))
	}
	for i, x := range vec {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return sigilerr.With(
				sigilerr.Errorf(sigilerr.CodeEmbeddingRequestInvalid, "embedding component %d is not finite", i),
				sigilerr.FieldAssetID(assetID))
		}
	}

	if err := c.vectors.Put(ctx, assetID, vec); err != nil {
		return err
	}
	c.invalidate(assetID)
	return nil
}

// Delete removes the stored vectors of assetIDs. Unknown ids are ignored.
func (c *Catalog) Delete(ctx context.Context, assetIDs ...string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	if err := c.vectors.Delete(ctx, assetIDs); err != nil {
		return err
	}
	c.invalidate(assetIDs...)
	return nil
}

func (c *Catalog) invalidate(assetIDs ...string) {
	if c.cache != nil {
		c.cache.Invalidate(assetIDs...)
	}
}

// Health reports the provider health snapshot. Without a guard the provider
// is always reported available.
func (c *Catalog) Health() health.Metrics {
	if c.guard == nil {
		return health.Metrics{Provider: "store", Available: true}
	}
	return c.guard.Health()
}
