// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package supportset manages versioned support sets: labeled example assets
// grouped by class. Versions are immutable; new versions come from Clone.
package supportset

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/fewshot/internal/lane"
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// Service provides support set operations on top of a store.SupportSetStore.
type Service struct {
	sets  store.SupportSetStore
	lanes *lane.Pool
}

// NewService returns a Service backed by sets.
func NewService(sets store.SupportSetStore) *Service {
	return &Service{
		sets:  sets,
		lanes: lane.NewPool("supportset"),
	}
}

// Create validates classes and stores a new root version (version 1).
func (s *Service) Create(ctx context.Context, name string, classes map[string][]string) (*store.SupportSet, error) {
	normalized, err := normalize(name, classes)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	set := &store.SupportSet{
		ID:        id,
		Name:      strings.TrimSpace(name),
		LineageID: id,
		Version:   1,
		Classes:   normalized,
		CreatedAt: time.Now(),
	}
	if err := s.sets.Create(ctx, set); err != nil {
		return nil, err
	}

	slog.Info("support set created", "support_set_id", set.ID, "classes", len(set.Classes))
	return set, nil
}

// Clone copies the class map of id into a new version of the same lineage.
// The source set is never modified.
func (s *Service) Clone(ctx context.Context, id string) (*store.SupportSet, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var clone *store.SupportSet
	err = s.lanes.Do(ctx, src.LineageID, func(ctx context.Context) error {
		maxVersion, err := s.sets.MaxVersion(ctx, src.LineageID)
		if err != nil {
			return err
		}

		c := src.Clone()
		c.ID = uuid.New().String()
		c.Version = maxVersion + 1
		c.ParentVersion = src.ID
		c.CreatedAt = time.Now()
		if err := s.sets.Create(ctx, c); err != nil {
			return err
		}
		clone = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("support set cloned",
		"support_set_id", clone.ID,
		"parent", src.ID,
		"lineage_id", clone.LineageID,
		"version", clone.Version)
	return clone, nil
}

// Get returns the support set with the given id.
func (s *Service) Get(ctx context.Context, id string) (*store.SupportSet, error) {
	set, err := s.sets.Get(ctx, id)
	if sigilerr.IsNotFound(err) {
		return nil, sigilerr.New(sigilerr.CodeSupportSetNotFound, "support set not found", sigilerr.FieldSupportSetID(id))
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

// List returns all support sets ordered by creation time.
func (s *Service) List(ctx context.Context) ([]*store.SupportSet, error) {
	return s.sets.List(ctx, store.ListOpts{})
}

// Lineage returns every version in the lineage of id, ordered by version.
func (s *Service) Lineage(ctx context.Context, id string) ([]*store.SupportSet, error) {
	set, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sets.ListLineage(ctx, set.LineageID)
}

// normalize validates a class map and de-duplicates refs within each class,
// keeping first-seen order.
func normalize(name string, classes map[string][]string) (map[string][]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, sigilerr.New(sigilerr.CodeSupportSetCreateInvalid, "support set name is required")
	}
	if len(classes) == 0 {
		return nil, sigilerr.New(sigilerr.CodeSupportSetCreateInvalid, "support set needs at least one class")
	}

	out := make(map[string][]string, len(classes))
	for label, refs := range classes {
		if strings.TrimSpace(label) == "" {
			return nil, sigilerr.New(sigilerr.CodeSupportSetCreateInvalid, "class label must not be empty")
		}
		deduped := make([]string, 0, len(refs))
		for _, ref := range refs {
			if strings.TrimSpace(ref) == "" {
				return nil, sigilerr.Errorf(sigilerr.CodeSupportSetCreateInvalid, "class %q has an empty example ref", label)
			}
			if !slices.Contains(deduped, ref) {
				deduped = append(deduped, ref)
			}
		}
		if len(deduped) == 0 {
			return nil, sigilerr.Errorf(sigilerr.CodeSupportSetCreateInvalid, "class %q has no examples", label)
		}
		out[label] = deduped
	}
	return out, nil
}
