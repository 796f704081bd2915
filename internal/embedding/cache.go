// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// Compile-time interface check.
var _ Provider = (*CachedProvider)(nil)

// CachedProvider memoizes vectors returned by the wrapped provider. Failed
// lookups are not cached.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// NewCachedProvider wraps inner with a TTL cache.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (p *CachedProvider) Embed(ctx context.Context, assetID string) ([]float32, error) {
	if v, ok := p.cache.Get(assetID); ok {
		return slices.Clone(v.([]float32)), nil
	}

	vec, err := p.inner.Embed(ctx, assetID)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(assetID, slices.Clone(vec))
	return vec, nil
}

// Invalidate drops cached vectors for the given assets.
func (p *CachedProvider) Invalidate(assetIDs ...string) {
	for _, id := range assetIDs {
		p.cache.Delete(id)
	}
}

// Len reports the number of cached vectors, including expired entries not
// yet evicted.
func (p *CachedProvider) Len() int {
	return p.cache.ItemCount()
}
