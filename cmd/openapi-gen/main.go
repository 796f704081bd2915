// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/fewshot/internal/classify"
	"github.com/sigil-dev/fewshot/internal/embedding"
	"github.com/sigil-dev/fewshot/internal/experiment"
	"github.com/sigil-dev/fewshot/internal/pipeline"
	"github.com/sigil-dev/fewshot/internal/queryset"
	"github.com/sigil-dev/fewshot/internal/server"
	"github.com/sigil-dev/fewshot/internal/store/memory"
	"github.com/sigil-dev/fewshot/internal/supportset"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/openapi.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI document written to %s\n", outPath)
}

// generateSpec registers every route on a server backed by an in-memory
// store and returns the OpenAPI document huma derives from the handler types.
// No handler runs.
func generateSpec() ([]byte, error) {
	st := memory.New()
	supports := supportset.NewService(st.SupportSets())
	queries := queryset.NewService(st.QuerySets())
	vectors := embedding.NewStoreProvider(st.Embeddings())

	registry := experiment.NewRegistry(experiment.Config{
		Experiments: st.Experiments(),
		Results:     st.Results(),
		SupportSets: supports,
		QuerySets:   queries,
		Engine:      classify.NewEngine(1),
		Embeddings:  vectors,
	})
	tracker := pipeline.NewTracker(pipeline.Config{Records: st.Tracking()})

	svc, err := server.NewServices(supports, queries, registry, tracker,
		embedding.NewCatalog(st.Embeddings(), nil, nil))
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
