// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/fewshot/internal/embedding"
	"github.com/sigil-dev/fewshot/internal/store/memory"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func TestStoreProvider(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Embeddings().Put(ctx, "img-1", []float32{1, 0}))

	p := embedding.NewStoreProvider(st.Embeddings())

	vec, err := p.Embed(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)

	_, err = p.Embed(ctx, "missing")
	require.Error(t, err)
	assert.True(t, sigilerr.IsUnavailable(err))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeEmbeddingMissing))
}

func TestCachedProvider(t *testing.T) {
	var calls atomic.Int32
	inner := embedding.ProviderFunc(func(_ context.Context, assetID string) ([]float32, error) {
		calls.Add(1)
		if assetID == "bad" {
			return nil, sigilerr.New(sigilerr.CodeEmbeddingUnavailable, "down")
		}
		return []float32{float32(calls.Load())}, nil
	})
	p := embedding.NewCachedProvider(inner, time.Minute)
	ctx := context.Background()

	first, err := p.Embed(ctx, "img-1")
	require.NoError(t, err)
	second, err := p.Embed(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	_, err = p.Embed(ctx, "bad")
	require.Error(t, err)
	_, err = p.Embed(ctx, "bad")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "failures are not cached")

	p.Invalidate("img-1")
	_, err = p.Embed(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestGuardedProvider_CooldownAfterFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	inner := embedding.ProviderFunc(func(_ context.Context, _ string) ([]float32, error) {
		if fail.Load() {
			return nil, sigilerr.New(sigilerr.CodeEmbeddingUnavailable, "connection refused")
		}
		return []float32{1}, nil
	})

	p, err := embedding.NewGuardedProvider("remote", inner, 10*time.Second)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.Tracker().SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	_, err = p.Embed(ctx, "img-1")
	require.Error(t, err)

	fail.Store(false)
	_, err = p.Embed(ctx, "img-1")
	require.Error(t, err, "fails fast while cooling down")
	assert.True(t, sigilerr.IsUnavailable(err))

	m := p.Health()
	assert.Equal(t, "remote", m.Provider)
	assert.False(t, m.Available)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.Contains(t, m.LastError, "connection refused")
	require.NotNil(t, m.CooldownUntil)

	p.Tracker().SetNowFunc(func() time.Time { return now.Add(11 * time.Second) })
	vec, err := p.Embed(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.True(t, p.Health().Available)
}

func TestGuardedProvider_MissingVectorIsNotAFailure(t *testing.T) {
	inner := embedding.ProviderFunc(func(_ context.Context, assetID string) ([]float32, error) {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingMissing, "no vector", sigilerr.FieldAssetID(assetID))
	})
	p, err := embedding.NewGuardedProvider("store", inner, time.Minute)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "img-1")
	require.Error(t, err)
	assert.True(t, p.Health().Available)
	assert.Zero(t, p.Health().FailureCount)
}

func TestNewHealthTracker_RejectsNonPositiveCooldown(t *testing.T) {
	_, err := embedding.NewHealthTracker(0)
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var gotInput, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotInput, gotModel = body.Input, body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "clip-test",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.25, -0.5, 1]}],
			"usage": {"prompt_tokens": 1, "total_tokens": 1}
		}`))
	}))
	defer srv.Close()

	p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:           "test-key",
		BaseURL:          srv.URL + "/v1/",
		Model:            "clip-test",
		AssetURITemplate: "s3://assets/{asset_id}.jpg",
	})
	require.NoError(t, err)

	vec, err := p.Embed(context.Background(), "img-7")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "s3://assets/img-7.jpg", gotInput)
	assert.Equal(t, "clip-test", gotModel)
}

func TestOpenAIProvider_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad input", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "m"})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "img-1")
	require.Error(t, err)
	assert.True(t, sigilerr.IsUnavailable(err))
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "m"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Embed(ctx, "img-1")
	require.Error(t, err)
	assert.True(t, sigilerr.IsTimeout(err))
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	_, err = embedding.NewOpenAIProvider(embedding.OpenAIConfig{APIKey: "k"})
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err))
}

func TestCatalog_PutInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cached := embedding.NewCachedProvider(embedding.NewStoreProvider(st.Embeddings()), time.Minute)
	cat := embedding.NewCatalog(st.Embeddings(), cached, nil)

	require.NoError(t, cat.Put(ctx, "img-1", []float32{1, 0}))
	vec, err := cached.Embed(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)

	require.NoError(t, cat.Put(ctx, "img-1", []float32{0, 1}))
	vec, err = cached.Embed(ctx, "img-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	require.NoError(t, cat.Delete(ctx, "img-1"))
	_, err = cached.Embed(ctx, "img-1")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeEmbeddingMissing))
}

func TestCatalog_PutRejectsInvalidVectors(t *testing.T) {
	cat := embedding.NewCatalog(memory.New().Embeddings(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		assetID string
		vec     []float32
	}{
		{"blank asset", " ", []float32{1}},
		{"empty vector", "img-1", nil},
		{"nan component", "img-1", []float32{float32(math.NaN())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cat.Put(ctx, tt.assetID, tt.vec)
			require.Error(t, err)
			assert.True(t, sigilerr.IsInvalidInput(err))
		})
	}
}

func TestCatalog_Health(t *testing.T) {
	assert.True(t, embedding.NewCatalog(memory.New().Embeddings(), nil, nil).Health().Available)

	failing := embedding.ProviderFunc(func(context.Context, string) ([]float32, error) {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingUnavailable, "down")
	})
	guard, err := embedding.NewGuardedProvider("remote", failing, time.Minute)
	require.NoError(t, err)
	_, _ = guard.Embed(context.Background(), "img-1")

	h := embedding.NewCatalog(memory.New().Embeddings(), nil, guard).Health()
	assert.False(t, h.Available)
	assert.Equal(t, "remote", h.Provider)
	assert.Equal(t, int64(1), h.FailureCount)
}
