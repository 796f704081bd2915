// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding resolves asset ids to embedding vectors. Providers fail
// with embedding.provider.unavailable (or embedding.vector.unavailable for a
// single missing vector) and embedding.provider.timeout.
package embedding

import (
	"context"
	"errors"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Provider returns the embedding vector for an asset.
type Provider interface {
	Embed(ctx context.Context, assetID string) ([]float32, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, assetID string) ([]float32, error)

// Embed calls f.
func (f ProviderFunc) Embed(ctx context.Context, assetID string) ([]float32, error) {
	return f(ctx, assetID)
}

// Compile-time interface check.
var _ Provider = (*StoreProvider)(nil)

// StoreProvider reads pre-computed vectors from the embeddings collection.
type StoreProvider struct {
	embeddings store.EmbeddingStore
}

// NewStoreProvider returns a provider backed by embeddings.
func NewStoreProvider(embeddings store.EmbeddingStore) *StoreProvider {
	return &StoreProvider{embeddings: embeddings}
}

func (p *StoreProvider) Embed(ctx context.Context, assetID string) ([]float32, error) {
	vec, err := p.embeddings.Get(ctx, assetID)
	switch {
	case err == nil:
		return vec, nil
	case sigilerr.IsNotFound(err):
		return nil, sigilerr.New(sigilerr.CodeEmbeddingMissing, "no embedding stored for asset",
			sigilerr.FieldAssetID(assetID))
	default:
		return nil, wrapContextErr(err, assetID)
	}
}

// wrapContextErr maps deadline errors to the timeout code and everything
// else to unavailable.
func wrapContextErr(err error, assetID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sigilerr.Errorf(sigilerr.CodeEmbeddingTimeout, "embedding asset %s: %w", assetID, err)
	}
	return sigilerr.Errorf(sigilerr.CodeEmbeddingUnavailable, "embedding asset %s: %w", assetID, err)
}
