// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// AssetIDPlaceholder is replaced by the asset id in OpenAIConfig.AssetURITemplate.
const AssetIDPlaceholder = "{asset_id}"

// OpenAIConfig holds settings for an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	// AssetURITemplate renders the embedding input for an asset, e.g.
	// "s3://assets/{asset_id}.jpg". Defaults to the bare asset id.
	AssetURITemplate string
	// Dimensions requests a specific vector size when non-zero.
	Dimensions int
	// RequestsPerSecond limits outgoing requests; zero disables limiting.
	RequestsPerSecond float64
}

// Compile-time interface check.
var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider embeds assets through the /embeddings API.
type OpenAIProvider struct {
	client  openaisdk.Client
	config  OpenAIConfig
	limiter *rate.Limiter
}

// NewOpenAIProvider creates an OpenAI embeddings provider. Returns an error
// if the API key or model is missing.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingRequestInvalid, "openai: missing api_key in config")
	}
	if cfg.Model == "" {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingRequestInvalid, "openai: missing model in config")
	}
	if cfg.AssetURITemplate == "" {
		cfg.AssetURITemplate = AssetIDPlaceholder
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIProvider{
		client:  openaisdk.NewClient(opts...),
		config:  cfg,
		limiter: limiter,
	}, nil
}

// AssetURI renders the embedding input for assetID.
func (p *OpenAIProvider) AssetURI(assetID string) string {
	return strings.ReplaceAll(p.config.AssetURITemplate, AssetIDPlaceholder, assetID)
}

func (p *OpenAIProvider) Embed(ctx context.Context, assetID string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, wrapContextErr(err, assetID)
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: openaisdk.String(p.AssetURI(assetID)),
		},
		Model:          openaisdk.EmbeddingModel(p.config.Model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if p.config.Dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(p.config.Dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		return nil, wrapContextErr(err, assetID)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingUnavailable, "openai: empty embedding response",
			sigilerr.FieldAssetID(assetID))
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
