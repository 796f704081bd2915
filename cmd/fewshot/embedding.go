// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/health"
)

func newEmbeddingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "embedding",
		Aliases: []string{"emb"},
		Short:   "Manage stored asset embeddings",
	}

	cmd.AddCommand(
		newEmbeddingPutCmd(),
		newEmbeddingImportCmd(),
		newEmbeddingDeleteCmd(),
		newEmbeddingHealthCmd(),
	)
	return cmd
}

func newEmbeddingPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <asset-id> <v1,v2,...>",
		Short: "Store the embedding of one asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vec, err := parseVector(args[1])
			if err != nil {
				return err
			}
			if err := putEmbedding(cmd, args[0], vec); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stored embedding for %s (%d dims)\n", args[0], len(vec))
			return err
		},
	}
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "invalid vector component %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

func putEmbedding(cmd *cobra.Command, assetID string, vec []float32) error {
	req := map[string]any{"embedding": vec}
	return newAPIClient(serverAddress()).do(cmd.Context(), http.MethodPut, "/embeddings/"+seg(assetID), req, nil)
}

func newEmbeddingImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store embeddings from a YAML file of asset id to vector",
		Args:  cobra.NoArgs,
		RunE:  runEmbeddingImport,
	}
	cmd.Flags().StringP("file", "f", "", "YAML mapping of asset id to vector (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runEmbeddingImport(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
	}
	var vectors map[string][]float32
	if err := yaml.Unmarshal(data, &vectors); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "parsing %s: %w", path, err)
	}

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := putEmbedding(cmd, id, vectors[id]); err != nil {
			return sigilerr.With(err, sigilerr.FieldAssetID(id))
		}
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d embeddings\n", len(ids))
	return err
}

func newEmbeddingDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <asset-id>",
		Short: "Delete the stored embedding of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient(serverAddress()).do(cmd.Context(), http.MethodDelete, "/embeddings/"+seg(args[0]), nil, nil); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted embedding for %s\n", args[0])
			return err
		},
	}
}

func newEmbeddingHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show embedding provider health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var m health.Metrics
			if err := newAPIClient(serverAddress()).get(cmd.Context(), "/embeddings/health", &m); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), m.String())
			return err
		},
	}
}
