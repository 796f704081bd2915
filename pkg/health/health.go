// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health holds the wire form of embedding provider health.
package health

import (
	"fmt"
	"time"
)

// Metrics is a snapshot of one embedding provider. The server returns it from
// GET /api/v1/embeddings/health and the CLI decodes it unchanged.
type Metrics struct {
	Provider      string     `json:"provider"`
	Available     bool       `json:"available"`
	FailureCount  int64      `json:"failure_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// State is "available" or "unavailable".
func (m Metrics) State() string {
	if m.Available {
		return "available"
	}
	return "unavailable"
}

// String formats the snapshot as a single status line.
func (m Metrics) String() string {
	s := fmt.Sprintf("%s: %s", m.Provider, m.State())
	if !m.Available && m.CooldownUntil != nil {
		s += fmt.Sprintf(" (retry after %s)", m.CooldownUntil.UTC().Format(time.RFC3339))
	}
	return s
}
