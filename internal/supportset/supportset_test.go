// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package supportset_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/fewshot/internal/store/memory"
	"github.com/sigil-dev/fewshot/internal/supportset"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func newService(t *testing.T) *supportset.Service {
	t.Helper()
	return supportset.NewService(memory.New().SupportSets())
}

func TestService_Create(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	set, err := svc.Create(ctx, "animals", map[string][]string{
		"cat": {"img-1", "img-2", "img-1"},
		"dog": {"img-3"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, set.Version)
	assert.Empty(t, set.ParentVersion)
	assert.Equal(t, set.ID, set.LineageID)
	assert.Equal(t, []string{"img-1", "img-2"}, set.Classes["cat"], "refs are de-duplicated in order")

	got, err := svc.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, set.Classes, got.Classes)
}

func TestService_CreateRoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	classes := map[string][]string{
		"class_0": {"img1", "img2"},
		"class_1": {"img3"},
	}

	set, err := svc.Create(ctx, "round-trip", classes)
	require.NoError(t, err)
	got, err := svc.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, classes, got.Classes, "repeat-free input comes back unchanged")

	set, err = svc.Create(ctx, "repeats", map[string][]string{"class_0": {"img2", "img1", "img2", "img2"}})
	require.NoError(t, err)
	got, err = svc.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"class_0": {"img2", "img1"}}, got.Classes, "repeats collapse to the first occurrence")
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		setName string
		classes map[string][]string
	}{
		{name: "empty name", setName: " ", classes: map[string][]string{"cat": {"a"}}},
		{name: "no classes", setName: "s", classes: nil},
		{name: "empty label", setName: "s", classes: map[string][]string{"": {"a"}}},
		{name: "class without examples", setName: "s", classes: map[string][]string{"cat": {}}},
		{name: "blank example ref", setName: "s", classes: map[string][]string{"cat": {"a", ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(t).Create(context.Background(), tt.setName, tt.classes)
			require.Error(t, err)
			assert.True(t, sigilerr.IsInvalidInput(err))
		})
	}
}

func TestService_CloneAllocatesNewVersion(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, "animals", map[string][]string{"cat": {"img-1"}})
	require.NoError(t, err)

	v2, err := svc.Clone(ctx, root.ID)
	require.NoError(t, err)
	assert.NotEqual(t, root.ID, v2.ID)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, root.ID, v2.ParentVersion)
	assert.Equal(t, root.LineageID, v2.LineageID)
	assert.Equal(t, root.Classes, v2.Classes)

	// Cloning an older version still allocates after the lineage maximum.
	v3, err := svc.Clone(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)

	src, err := svc.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Version, "source is never mutated")

	lineage, err := svc.Lineage(ctx, v2.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	for i, set := range lineage {
		assert.Equal(t, i+1, set.Version)
	}
}

func TestService_ConcurrentClonesGetDistinctVersions(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, "animals", map[string][]string{"cat": {"img-1"}})
	require.NoError(t, err)

	const n = 10
	versions := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.Clone(ctx, root.ID)
			if assert.NoError(t, err) {
				versions <- c.Version
			}
		}()
	}
	wg.Wait()
	close(versions)

	seen := make(map[int]bool)
	for v := range versions {
		assert.False(t, seen[v], "version %d allocated twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}

func TestService_NotFound(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSupportSetNotFound))

	_, err = svc.Clone(ctx, "missing")
	assert.True(t, sigilerr.IsNotFound(err))

	_, err = svc.Lineage(ctx, "missing")
	assert.True(t, sigilerr.IsNotFound(err))
}
