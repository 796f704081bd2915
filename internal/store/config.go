// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// defaultVectorDimensions matches the CLIP ViT-B/32 embedding size.
const defaultVectorDimensions = 512

// StorageConfig selects the backend and sizes the embeddings collection.
type StorageConfig struct {
	Backend          string // registered backend name; empty selects sqlite
	VectorDimensions int
}

// backend returns the effective backend name.
func (c *StorageConfig) backend() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return c.Backend
}

// dimensions returns the effective vector size.
func (c *StorageConfig) dimensions() int {
	if c.VectorDimensions > 0 {
		return c.VectorDimensions
	}
	return defaultVectorDimensions
}
