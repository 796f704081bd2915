// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sigil-dev/fewshot/internal/config"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fewshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *config.Config {
	return &config.Config{
		Networking: config.NetworkingConfig{Listen: "127.0.0.1:18790"},
		Storage:    config.StorageConfig{Backend: "sqlite", VectorDimensions: 512},
		Classification: config.ClassificationConfig{
			DefaultMethod:    "cosine",
			DefaultThreshold: 0.5,
			Workers:          4,
			RunTimeout:       time.Minute,
		},
		Embedding: config.EmbeddingConfig{
			Provider:       "store",
			CacheTTL:       time.Minute,
			HealthCooldown: time.Second,
		},
		Pipeline: config.PipelineConfig{ExecuteTimeout: time.Minute},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18790", cfg.Networking.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 512, cfg.Storage.VectorDimensions)
	assert.Equal(t, "cosine", cfg.Classification.DefaultMethod)
	assert.InDelta(t, 0.5, cfg.Classification.DefaultThreshold, 1e-9)
	assert.Equal(t, 8, cfg.Classification.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Classification.RunTimeout)
	assert.Equal(t, "store", cfg.Embedding.Provider)
	assert.Equal(t, 30*time.Second, cfg.Embedding.HealthCooldown)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.ExecuteTimeout)
	assert.False(t, cfg.Pipeline.StrictOrdering)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
networking:
  listen: "0.0.0.0:9999"
storage:
  backend: memory
  vector_dimensions: 8
classification:
  default_method: centroid
  run_timeout: 30s
pipeline:
  strict_ordering: true
  workers:
    preprocessed:
      url: "http://127.0.0.1:9000/pre"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Networking.Listen)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 8, cfg.Storage.VectorDimensions)
	assert.Equal(t, "centroid", cfg.Classification.DefaultMethod)
	assert.Equal(t, 30*time.Second, cfg.Classification.RunTimeout)
	assert.True(t, cfg.Pipeline.StrictOrdering)
	assert.Equal(t, map[types.Stage]string{
		types.StagePreprocessed: "http://127.0.0.1:9000/pre",
	}, cfg.WorkerURLs())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FEWSHOT_NETWORKING_LISTEN", "10.0.0.1:8080")
	t.Setenv("FEWSHOT_CLASSIFICATION_WORKERS", "3")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Networking.Listen)
	assert.Equal(t, 3, cfg.Classification.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: "postgres"
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("embedding.provider", "openai")
	v.Set("embedding.api_key", "sk-test")
	v.Set("embedding.model", "text-embedding-3-small")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{"empty listen", func(c *config.Config) { c.Networking.Listen = "" }, "networking.listen must not be empty"},
		{"listen without port", func(c *config.Config) { c.Networking.Listen = "localhost" }, "networking.listen"},
		{"port out of range", func(c *config.Config) { c.Networking.Listen = ":70000" }, "between 1 and 65535"},
		{"blank cors origin", func(c *config.Config) { c.Networking.CORSOrigins = []string{" "} }, "cors_origins[0]"},
		{"negative rate", func(c *config.Config) { c.Networking.RateLimit.RequestsPerSecond = -1 }, "rate_limit.requests_per_second"},
		{"rate without burst", func(c *config.Config) { c.Networking.RateLimit.RequestsPerSecond = 5 }, "rate_limit.burst"},
		{"zero dimensions", func(c *config.Config) { c.Storage.VectorDimensions = 0 }, "storage.vector_dimensions"},
		{"unknown method", func(c *config.Config) { c.Classification.DefaultMethod = "knn" }, "default_method"},
		{"threshold above one", func(c *config.Config) { c.Classification.DefaultThreshold = 1.5 }, "default_threshold"},
		{"negative threshold", func(c *config.Config) { c.Classification.DefaultThreshold = -0.1 }, "default_threshold"},
		{"zero workers", func(c *config.Config) { c.Classification.Workers = 0 }, "classification.workers"},
		{"zero run timeout", func(c *config.Config) { c.Classification.RunTimeout = 0 }, "run_timeout"},
		{"unknown provider", func(c *config.Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"openai without model", func(c *config.Config) {
			c.Embedding.Provider = "openai"
			c.Embedding.APIKey = "k"
		}, "embedding.model"},
		{"openai without key", func(c *config.Config) {
			c.Embedding.Provider = "openai"
			c.Embedding.Model = "m"
		}, "embedding.api_key"},
		{"negative rps", func(c *config.Config) { c.Embedding.RequestsPerSecond = -1 }, "requests_per_second"},
		{"zero cooldown", func(c *config.Config) { c.Embedding.HealthCooldown = 0 }, "health_cooldown"},
		{"zero execute timeout", func(c *config.Config) { c.Pipeline.ExecuteTimeout = 0 }, "execute_timeout"},
		{"unknown worker stage", func(c *config.Config) {
			c.Pipeline.Workers = map[string]config.WorkerConfig{"deployed": {URL: "http://x/"}}
		}, `unknown stage "deployed"`},
		{"relative worker url", func(c *config.Config) {
			c.Pipeline.Workers = map[string]config.WorkerConfig{"annotated": {URL: "worker"}}
		}, "pipeline.workers.annotated.url"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.wantMsg)
			assert.True(t, sigilerr.HasCode(errs[0], sigilerr.CodeConfigValidateInvalidValue))
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "nope"
	cfg.Classification.Workers = -1
	cfg.Logging.Format = "xml"

	assert.Len(t, cfg.Validate(), 3)
}

func TestBootstrapConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fewshot.yaml")

	assert.Equal(t, path, config.BootstrapConfig(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigYAML, data)

	// Existing files are left alone.
	assert.Empty(t, config.BootstrapConfig(path))
}

func TestDefaultConfigYAML_Loads(t *testing.T) {
	path := writeConfig(t, string(config.DefaultConfigYAML))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "store", cfg.Embedding.Provider)
}
