// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package memory_test

import (
	"testing"

	"github.com/sigil-dev/fewshot/internal/store"
	"github.com/sigil-dev/fewshot/internal/store/memory"
	"github.com/sigil-dev/fewshot/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T) store.Store { return memory.New() })
}

func TestMemoryStore_RegisteredBackend(t *testing.T) {
	s, err := store.New(&store.StorageConfig{Backend: "memory"}, t.TempDir())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.IsType(t, &memory.Store{}, s)
	assert.Contains(t, store.Backends(), "memory")
}
