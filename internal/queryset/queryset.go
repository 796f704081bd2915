// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package queryset manages immutable query sets: ordered, distinct asset ids
// to classify.
package queryset

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Service provides query set operations on top of a store.QuerySetStore.
type Service struct {
	sets store.QuerySetStore
}

// NewService returns a Service backed by sets.
func NewService(sets store.QuerySetStore) *Service {
	return &Service{sets: sets}
}

// Create stores a query set holding the distinct asset ids in first-seen order.
func (s *Service) Create(ctx context.Context, name string, assetIDs []string) (*store.QuerySet, error) {
	if strings.TrimSpace(name) == "" {
		return nil, sigilerr.New(sigilerr.CodeQuerySetCreateInvalid, "query set name is required")
	}
	if len(assetIDs) == 0 {
		return nil, sigilerr.New(sigilerr.CodeQuerySetCreateInvalid, "query set needs at least one asset")
	}

	seen := make(map[string]struct{}, len(assetIDs))
	distinct := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if strings.TrimSpace(id) == "" {
			return nil, sigilerr.New(sigilerr.CodeQuerySetCreateInvalid, "asset id must not be empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	set := &store.QuerySet{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		AssetIDs:  distinct,
		CreatedAt: time.Now(),
	}
	if err := s.sets.Create(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Get returns the query set with the given id.
func (s *Service) Get(ctx context.Context, id string) (*store.QuerySet, error) {
	set, err := s.sets.Get(ctx, id)
	if sigilerr.IsNotFound(err) {
		return nil, sigilerr.New(sigilerr.CodeQuerySetNotFound, "query set not found", sigilerr.FieldQuerySetID(id))
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

// List returns all query sets ordered by creation time.
func (s *Service) List(ctx context.Context) ([]*store.QuerySet, error) {
	return s.sets.List(ctx, store.ListOpts{})
}
