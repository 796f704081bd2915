// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FEWSHOT_NETWORKING_LISTEN.
const EnvPrefix = "FEWSHOT"

// Config is the top-level fewshot configuration.
type Config struct {
	DataDir        string               `mapstructure:"data_dir"`
	Networking     NetworkingConfig     `mapstructure:"networking"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Embedding      EmbeddingConfig      `mapstructure:"embedding"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig caps requests per client IP. Zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects the storage backend and the embedding width it holds.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	VectorDimensions int    `mapstructure:"vector_dimensions"`
}

// ClassificationConfig holds experiment defaults.
type ClassificationConfig struct {
	DefaultMethod    string        `mapstructure:"default_method"`
	DefaultThreshold float64       `mapstructure:"default_threshold"`
	Workers          int           `mapstructure:"workers"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

// EmbeddingConfig selects where query and support vectors come from.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Endpoint          string        `mapstructure:"endpoint"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	AssetURITemplate  string        `mapstructure:"asset_uri_template"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	HealthCooldown    time.Duration `mapstructure:"health_cooldown"`
}

// PipelineConfig configures the tracker and its stage workers.
type PipelineConfig struct {
	StrictOrdering bool                    `mapstructure:"strict_ordering"`
	ExecuteTimeout time.Duration           `mapstructure:"execute_timeout"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
}

// WorkerConfig points a stage at an HTTP worker.
type WorkerConfig struct {
	URL string `mapstructure:"url"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SetDefaults registers every default on v. Keys without a default are not
// visible to AutomaticEnv during Unmarshal, so all env-overridable keys
// appear here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit.requests_per_second", 0)
	v.SetDefault("networking.rate_limit.burst", 20)
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.vector_dimensions", 512)
	v.SetDefault("classification.default_method", "cosine")
	v.SetDefault("classification.default_threshold", 0.5)
	v.SetDefault("classification.workers", 8)
	v.SetDefault("classification.run_timeout", "10m")
	v.SetDefault("embedding.provider", "store")
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.asset_uri_template", "{asset_id}")
	v.SetDefault("embedding.requests_per_second", 0)
	v.SetDefault("embedding.cache_ttl", "10m")
	v.SetDefault("embedding.health_cooldown", "30s")
	v.SetDefault("pipeline.strict_ordering", false)
	v.SetDefault("pipeline.execute_timeout", "5m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

// SetupEnv enables FEWSHOT_ prefixed environment overrides.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults only when path
// is empty) with environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors and returns all of
// them rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateClassification()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func invalid(format string, args ...any) error {
	return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		return append(errs, invalid("networking.listen must not be empty"))
	}

	// An empty host (":8080") is allowed.
	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		return append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err))
	}
	port, err := strconv.Atoi(portStr)
	switch {
	case err != nil:
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	case port < 1 || port > 65535:
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}

	rl := c.Networking.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("networking.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("networking.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}

	for i, origin := range c.Networking.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, invalid("networking.cors_origins[%d] must not be empty", i))
		}
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if !oneOf(c.Storage.Backend, "sqlite", "memory") {
		errs = append(errs, invalid("storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend))
	}
	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, invalid("storage.vector_dimensions must be greater than 0, got %d", c.Storage.VectorDimensions))
	}

	return errs
}

func (c *Config) validateClassification() []error {
	var errs []error
	cl := c.Classification

	if !oneOf(cl.DefaultMethod, "cosine", "centroid") {
		errs = append(errs, invalid("classification.default_method must be one of [cosine, centroid], got %q", cl.DefaultMethod))
	}
	if cl.DefaultThreshold < 0 || cl.DefaultThreshold > 1 {
		errs = append(errs, invalid("classification.default_threshold must be within [0, 1], got %g", cl.DefaultThreshold))
	}
	if cl.Workers <= 0 {
		errs = append(errs, invalid("classification.workers must be greater than 0, got %d", cl.Workers))
	}
	if cl.RunTimeout <= 0 {
		errs = append(errs, invalid("classification.run_timeout must be positive, got %s", cl.RunTimeout))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	e := c.Embedding

	switch e.Provider {
	case "store":
	case "openai":
		if e.Model == "" {
			errs = append(errs, invalid("embedding.model is required when embedding.provider is openai"))
		}
		if e.APIKey == "" {
			errs = append(errs, invalid("embedding.api_key is required when embedding.provider is openai"))
		}
		if e.Endpoint != "" {
			if _, err := url.ParseRequestURI(e.Endpoint); err != nil {
				errs = append(errs, invalid("embedding.endpoint must be an absolute URL, got %q", e.Endpoint))
			}
		}
	default:
		errs = append(errs, invalid("embedding.provider must be one of [store, openai], got %q", e.Provider))
	}

	if e.RequestsPerSecond < 0 {
		errs = append(errs, invalid("embedding.requests_per_second must not be negative, got %g", e.RequestsPerSecond))
	}
	if e.CacheTTL < 0 {
		errs = append(errs, invalid("embedding.cache_ttl must not be negative, got %s", e.CacheTTL))
	}
	if e.HealthCooldown <= 0 {
		errs = append(errs, invalid("embedding.health_cooldown must be positive, got %s", e.HealthCooldown))
	}

	return errs
}

func (c *Config) validatePipeline() []error {
	var errs []error

	if c.Pipeline.ExecuteTimeout <= 0 {
		errs = append(errs, invalid("pipeline.execute_timeout must be positive, got %s", c.Pipeline.ExecuteTimeout))
	}

	for name, w := range c.Pipeline.Workers {
		if _, err := types.ParseStage(name); err != nil {
			errs = append(errs, invalid("pipeline.workers has unknown stage %q", name))
			continue
		}
		u, err := url.ParseRequestURI(w.URL)
		if err != nil || u.Host == "" {
			errs = append(errs, invalid("pipeline.workers.%s.url must be an absolute URL, got %q", name, w.URL))
		}
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	if !oneOf(strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error") {
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	if !oneOf(c.Logging.Format, "text", "json") {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

// WorkerURLs returns the configured stage worker endpoints keyed by stage.
// Invalid stage names are skipped; Validate reports them.
func (c *Config) WorkerURLs() map[types.Stage]string {
	out := make(map[types.Stage]string, len(c.Pipeline.Workers))
	for name, w := range c.Pipeline.Workers {
		st, err := types.ParseStage(name)
		if err != nil {
			continue
		}
		out[st] = w.URL
	}
	return out
}
