// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/health"
)

// HealthTracker records provider failures. After a failure the provider is
// reported down until the cooldown has passed; the next call after that is
// let through as a probe.
type HealthTracker struct {
	mu        sync.RWMutex
	cooldown  time.Duration
	clock     func() time.Time
	downUntil time.Time // zero while healthy
	lastFail  time.Time
	lastErr   string
	failures  int64
}

// NewHealthTracker returns a healthy tracker. cooldown must be positive.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{cooldown: cooldown, clock: time.Now}, nil
}

func (h *HealthTracker) availableLocked() bool {
	return h.downUntil.IsZero() || !h.clock().Before(h.downUntil)
}

// IsHealthy reports whether a call may reach the provider.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

// RecordSuccess clears any pending cooldown.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.downUntil = time.Time{}
	h.mu.Unlock()
}

// RecordFailure starts a new cooldown window.
func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFail = h.clock()
	h.downUntil = h.lastFail.Add(h.cooldown)
	h.failures++
	if err != nil {
		h.lastErr = err.Error()
	}
}

// SetNowFunc replaces the clock.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.clock = fn
	h.mu.Unlock()
}

// Metrics snapshots the tracker. Provider is left for the caller to fill.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		Available:    h.availableLocked(),
		FailureCount: h.failures,
		LastError:    h.lastErr,
	}
	if h.failures > 0 {
		at := h.lastFail
		m.LastFailureAt = &at
	}
	if !h.downUntil.IsZero() {
		until := h.downUntil
		m.CooldownUntil = &until
	}
	return m
}

var _ Provider = (*GuardedProvider)(nil)

// GuardedProvider fails fast with embedding.provider.unavailable while the
// wrapped provider is cooling down after a failure. Missing vectors and
// caller cancellation do not count as provider failures.
type GuardedProvider struct {
	name    string
	inner   Provider
	tracker *HealthTracker
}

// NewGuardedProvider wraps inner with a health tracker using cooldown.
func NewGuardedProvider(name string, inner Provider, cooldown time.Duration) (*GuardedProvider, error) {
	tracker, err := NewHealthTracker(cooldown)
	if err != nil {
		return nil, err
	}
	return &GuardedProvider{name: name, inner: inner, tracker: tracker}, nil
}

func (p *GuardedProvider) Embed(ctx context.Context, assetID string) ([]float32, error) {
	if !p.tracker.IsHealthy() {
		return nil, sigilerr.New(sigilerr.CodeEmbeddingUnavailable, "embedding provider is cooling down after a failure",
			sigilerr.Field("provider", p.name),
			sigilerr.FieldAssetID(assetID))
	}

	vec, err := p.inner.Embed(ctx, assetID)
	if err == nil {
		p.tracker.RecordSuccess()
		return vec, nil
	}
	if countsAsFailure(err) {
		p.tracker.RecordFailure(err)
		slog.Warn("embedding provider failure", "provider", p.name, "asset_id", assetID, "error", err)
	}
	return nil, err
}

func countsAsFailure(err error) bool {
	return !sigilerr.HasCode(err, sigilerr.CodeEmbeddingMissing) && !errors.Is(err, context.Canceled)
}

func (p *GuardedProvider) Tracker() *HealthTracker { return p.tracker }

// Health returns the tracker snapshot labelled with the provider name.
func (p *GuardedProvider) Health() health.Metrics {
	m := p.tracker.Metrics()
	m.Provider = p.name
	return m
}
