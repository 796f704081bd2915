// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Version is reported in the OpenAPI document.
var Version = "0.1.0"

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr      string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig
	// DefaultThreshold applies to experiments created without a threshold.
	DefaultThreshold float32
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return sigilerr.New(sigilerr.CodeServerConfigInvalid, "listen address is required")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// Server serves the fewshot REST API. Routes are added by RegisterServices.
type Server struct {
	router   chi.Router
	api      huma.API
	cfg      Config
	services *Services
}

// New builds the router with recovery, CORS and rate limiting, and registers
// the unauthenticated /health probe.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RealIP,
		corsMiddleware(cfg.CORSOrigins),
		rateLimitMiddleware(cfg.RateLimit),
	)

	apiCfg := huma.DefaultConfig("fewshot", Version)
	apiCfg.Info.Description = "Few-shot classification experiments and asset pipeline tracking"

	s := &Server{router: r, api: humachi.New(r, apiCfg), cfg: cfg}
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness probe",
		Tags:        []string{"system"},
	}, s.handleHealth)
	return s, nil
}

// Handler exposes the router for tests and embedding in other servers.
func (s *Server) Handler() http.Handler { return s.router }

// API exposes the huma API, used by openapi-gen.
func (s *Server) API() huma.API { return s.api }

// Start listens on the configured address and calls Serve.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return sigilerr.Wrap(err, sigilerr.CodeServerStartFailure, "serving http")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return sigilerr.Wrap(err, sigilerr.CodeServerShutdownFailure, "shutting down")
		}
		return nil
	})
	return g.Wait()
}

// HealthBody is the body of GET /health.
type HealthBody struct {
	Status  string `json:"status" example:"ok" doc:"Always ok while the process serves requests"`
	Version string `json:"version" doc:"Server build version"`
}

// HealthResponse wraps HealthBody.
type HealthResponse struct {
	Body HealthBody
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*HealthResponse, error) {
	return &HealthResponse{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
}
