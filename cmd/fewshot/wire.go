// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/sigil-dev/fewshot/internal/classify"
	"github.com/sigil-dev/fewshot/internal/config"
	"github.com/sigil-dev/fewshot/internal/embedding"
	"github.com/sigil-dev/fewshot/internal/experiment"
	"github.com/sigil-dev/fewshot/internal/pipeline"
	"github.com/sigil-dev/fewshot/internal/queryset"
	"github.com/sigil-dev/fewshot/internal/server"
	"github.com/sigil-dev/fewshot/internal/store"
	_ "github.com/sigil-dev/fewshot/internal/store/memory" // register memory backend
	_ "github.com/sigil-dev/fewshot/internal/store/sqlite" // register sqlite backend
	"github.com/sigil-dev/fewshot/internal/supportset"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
)

// runWriteMargin is added to the run timeout for the HTTP write deadline so
// a synchronous run can still send its response.
const runWriteMargin = 30 * time.Second

// App holds all wired subsystems and manages their lifecycle.
type App struct {
	Server   *server.Server
	Store    store.Store
	Registry *experiment.Registry
	Tracker  *pipeline.Tracker
	Catalog  *embedding.Catalog
}

// Wire creates all subsystems and wires them together. dataDir is the root
// directory for persistent state.
func Wire(ctx context.Context, cfg *config.Config, dataDir string) (*App, error) {
	storeCfg := &store.StorageConfig{
		Backend:          cfg.Storage.Backend,
		VectorDimensions: cfg.Storage.VectorDimensions,
	}

	if cfg.Storage.Backend != "memory" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}

	// 1. Store.
	st, err := store.New(storeCfg, dataDir)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}

	app, err := wireServices(ctx, cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return app, nil
}

func wireServices(ctx context.Context, cfg *config.Config, st store.Store) (*App, error) {
	// 2. Embedding provider chain: base, health guard, optional cache.
	base, err := newBaseProvider(cfg.Embedding, st.Embeddings())
	if err != nil {
		return nil, err
	}
	guard, err := embedding.NewGuardedProvider(cfg.Embedding.Provider, base, cfg.Embedding.HealthCooldown)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating embedding health guard")
	}
	var (
		provider embedding.Provider = guard
		cache    *embedding.CachedProvider
	)
	if cfg.Embedding.CacheTTL > 0 {
		cache = embedding.NewCachedProvider(guard, cfg.Embedding.CacheTTL)
		provider = cache
	}
	catalog := embedding.NewCatalog(st.Embeddings(), cache, guard)

	// 3. Domain services.
	supports := supportset.NewService(st.SupportSets())
	queries := queryset.NewService(st.QuerySets())

	method, err := classify.ParseMethod(cfg.Classification.DefaultMethod)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "parsing classification.default_method")
	}
	registry := experiment.NewRegistry(experiment.Config{
		Experiments:   st.Experiments(),
		Results:       st.Results(),
		SupportSets:   supports,
		QuerySets:     queries,
		Engine:        classify.NewEngine(cfg.Classification.Workers),
		Embeddings:    provider,
		RunTimeout:    cfg.Classification.RunTimeout,
		DefaultMethod: method,
	})
	if n, err := registry.Recover(ctx); err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "recovering interrupted experiments")
	} else if n > 0 {
		slog.Warn("marked interrupted experiments as failed", "count", n)
	}

	workers := make(map[types.Stage]pipeline.StageWorker)
	for stage, url := range cfg.WorkerURLs() {
		workers[stage] = pipeline.NewHTTPWorker(stage, url)
		slog.Info("registered stage worker", "stage", stage, "url", url)
	}
	tracker := pipeline.NewTracker(pipeline.Config{
		Records:        st.Tracking(),
		Workers:        workers,
		StrictOrdering: cfg.Pipeline.StrictOrdering,
		ExecuteTimeout: cfg.Pipeline.ExecuteTimeout,
	})

	// 4. HTTP server.
	services, err := server.NewServices(supports, queries, registry, tracker, catalog)
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating services")
	}
	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Networking.Listen,
		CORSOrigins:  cfg.Networking.CORSOrigins,
		WriteTimeout: cfg.Classification.RunTimeout + runWriteMargin,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Networking.RateLimit.RequestsPerSecond,
			Burst:             cfg.Networking.RateLimit.Burst,
		},
		DefaultThreshold: float32(cfg.Classification.DefaultThreshold),
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating server")
	}
	srv.RegisterServices(services)

	return &App{
		Server:   srv,
		Store:    st,
		Registry: registry,
		Tracker:  tracker,
		Catalog:  catalog,
	}, nil
}

// newBaseProvider returns the provider that produces vectors. The openai
// provider reads stored vectors first and stores what it computes.
func newBaseProvider(cfg config.EmbeddingConfig, vectors store.EmbeddingStore) (embedding.Provider, error) {
	stored := embedding.NewStoreProvider(vectors)
	if cfg.Provider != "openai" {
		return stored, nil
	}

	remote, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.Endpoint,
		Model:             cfg.Model,
		AssetURITemplate:  cfg.AssetURITemplate,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "creating openai embedding provider")
	}

	return embedding.ProviderFunc(func(ctx context.Context, assetID string) ([]float32, error) {
		vec, err := stored.Embed(ctx, assetID)
		if !sigilerr.HasCode(err, sigilerr.CodeEmbeddingMissing) {
			return vec, err
		}
		vec, err = remote.Embed(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if err := vectors.Put(ctx, assetID, vec); err != nil {
			slog.Warn("storing computed embedding", "asset_id", assetID, "error", err)
		}
		return vec, nil
	}), nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources held by the app.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
