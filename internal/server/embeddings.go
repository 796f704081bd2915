// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/fewshot/pkg/health"
)

type putEmbeddingInput struct {
	AssetID string `path:"assetId"`
	Body    struct {
		Embedding []float32 `json:"embedding" minItems:"1" doc:"Vector of the configured dimensionality"`
	}
}

type embeddingHealthOutput struct {
	Body health.Metrics
}

func (s *Server) handleEmbeddingHealth(_ context.Context, _ *struct{}) (*embeddingHealthOutput, error) {
	return &embeddingHealthOutput{Body: s.services.embeddings.Health()}, nil
}

func (s *Server) handlePutEmbedding(ctx context.Context, input *putEmbeddingInput) (*struct{}, error) {
	if err := s.services.embeddings.Put(ctx, input.AssetID, input.Body.Embedding); err != nil {
		return nil, apiError("storing embedding", err)
	}
	return nil, nil
}

func (s *Server) handleDeleteEmbedding(ctx context.Context, input *assetIDInput) (*struct{}, error) {
	if err := s.services.embeddings.Delete(ctx, input.AssetID); err != nil {
		return nil, apiError("deleting embedding", err)
	}
	return nil, nil
}
