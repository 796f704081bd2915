// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	s.registerSupportSetRoutes()
	s.registerQuerySetRoutes()
	s.registerExperimentRoutes()
	s.registerTrackingRoutes()
	s.registerEmbeddingRoutes()
}

func (s *Server) registerSupportSetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-support-set",
		Method:        http.MethodPost,
		Path:          "/api/v1/support-sets",
		Summary:       "Create a support set",
		Tags:          []string{"support-sets"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateSupportSet)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-support-sets",
		Method:      http.MethodGet,
		Path:        "/api/v1/support-sets",
		Summary:     "List support sets",
		Tags:        []string{"support-sets"},
	}, s.handleListSupportSets)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-support-set",
		Method:      http.MethodGet,
		Path:        "/api/v1/support-sets/{id}",
		Summary:     "Get a support set version",
		Tags:        []string{"support-sets"},
	}, s.handleGetSupportSet)

	huma.Register(s.api, huma.Operation{
		OperationID:   "clone-support-set",
		Method:        http.MethodPost,
		Path:          "/api/v1/support-sets/{id}/clone",
		Summary:       "Clone a support set into a new version",
		Tags:          []string{"support-sets"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCloneSupportSet)

	huma.Register(s.api, huma.Operation{
		OperationID: "support-set-lineage",
		Method:      http.MethodGet,
		Path:        "/api/v1/support-sets/{id}/lineage",
		Summary:     "List every version in a support set's lineage",
		Tags:        []string{"support-sets"},
	}, s.handleSupportSetLineage)
}

func (s *Server) registerQuerySetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-query-set",
		Method:        http.MethodPost,
		Path:          "/api/v1/query-sets",
		Summary:       "Create a query set",
		Tags:          []string{"query-sets"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateQuerySet)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-query-sets",
		Method:      http.MethodGet,
		Path:        "/api/v1/query-sets",
		Summary:     "List query sets",
		Tags:        []string{"query-sets"},
	}, s.handleListQuerySets)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-query-set",
		Method:      http.MethodGet,
		Path:        "/api/v1/query-sets/{id}",
		Summary:     "Get a query set",
		Tags:        []string{"query-sets"},
	}, s.handleGetQuerySet)
}

func (s *Server) registerExperimentRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-experiment",
		Method:        http.MethodPost,
		Path:          "/api/v1/experiments",
		Summary:       "Create an experiment",
		Tags:          []string{"experiments"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateExperiment)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-experiments",
		Method:      http.MethodGet,
		Path:        "/api/v1/experiments",
		Summary:     "List experiments",
		Tags:        []string{"experiments"},
	}, s.handleListExperiments)

	huma.Register(s.api, huma.Operation{
		OperationID: "compare-experiments",
		Method:      http.MethodPost,
		Path:        "/api/v1/experiments/compare",
		Summary:     "Compare the summaries of completed experiments",
		Tags:        []string{"experiments"},
	}, s.handleCompareExperiments)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-experiment",
		Method:      http.MethodGet,
		Path:        "/api/v1/experiments/{id}",
		Summary:     "Get an experiment",
		Tags:        []string{"experiments"},
	}, s.handleGetExperiment)

	huma.Register(s.api, huma.Operation{
		OperationID: "run-experiment",
		Method:      http.MethodPost,
		Path:        "/api/v1/experiments/{id}/run",
		Summary:     "Run an experiment and wait for it to finish",
		Tags:        []string{"experiments"},
	}, s.handleRunExperiment)

	huma.Register(s.api, huma.Operation{
		OperationID: "experiment-results",
		Method:      http.MethodGet,
		Path:        "/api/v1/experiments/{id}/results",
		Summary:     "Get the results of a completed experiment",
		Tags:        []string{"experiments"},
	}, s.handleExperimentResults)

	huma.Register(s.api, huma.Operation{
		OperationID: "experiment-lineage",
		Method:      http.MethodGet,
		Path:        "/api/v1/experiments/{id}/lineage",
		Summary:     "Walk an experiment's parent chain",
		Tags:        []string{"experiments"},
	}, s.handleExperimentLineage)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-experiment",
		Method:        http.MethodDelete,
		Path:          "/api/v1/experiments/{id}",
		Summary:       "Delete an experiment and its results",
		Tags:          []string{"experiments"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteExperiment)
}

func (s *Server) registerTrackingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "tracking-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/tracking/status",
		Summary:     "Count assets per current stage",
		Tags:        []string{"tracking"},
	}, s.handleTrackingStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "tracking-errors",
		Method:      http.MethodGet,
		Path:        "/api/v1/tracking/errors",
		Summary:     "List assets with recorded errors",
		Tags:        []string{"tracking"},
	}, s.handleTrackingErrors)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-tracking",
		Method:      http.MethodPost,
		Path:        "/api/v1/tracking/{assetId}",
		Summary:     "Report a stage status for an asset",
		Tags:        []string{"tracking"},
	}, s.handleUpdateTracking)

	huma.Register(s.api, huma.Operation{
		OperationID: "ingest-tracking",
		Method:      http.MethodPut,
		Path:        "/api/v1/tracking/{assetId}",
		Summary:     "Start tracking an asset",
		Description: "Creates an empty record in stage none. An existing record is returned unchanged.",
		Tags:        []string{"tracking"},
	}, s.handleIngestTracking)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-tracking",
		Method:      http.MethodGet,
		Path:        "/api/v1/tracking/{assetId}",
		Summary:     "Get an asset's tracking record",
		Tags:        []string{"tracking"},
	}, s.handleGetTracking)

	huma.Register(s.api, huma.Operation{
		OperationID: "execute-stage",
		Method:      http.MethodPost,
		Path:        "/api/v1/tracking/{assetId}/stages/{stage}/execute",
		Summary:     "Run a stage worker for an asset",
		Tags:        []string{"tracking"},
	}, s.handleExecuteStage)

	huma.Register(s.api, huma.Operation{
		OperationID: "retry-tracking",
		Method:      http.MethodPost,
		Path:        "/api/v1/tracking/{assetId}/retry",
		Summary:     "Retry the most recent failed stage of an asset",
		Tags:        []string{"tracking"},
	}, s.handleRetryTracking)
}

func (s *Server) registerEmbeddingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "embedding-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/embeddings/health",
		Summary:     "Embedding provider health",
		Tags:        []string{"embeddings"},
	}, s.handleEmbeddingHealth)

	huma.Register(s.api, huma.Operation{
		OperationID:   "put-embedding",
		Method:        http.MethodPut,
		Path:          "/api/v1/embeddings/{assetId}",
		Summary:       "Store a pre-computed embedding",
		Tags:          []string{"embeddings"},
		DefaultStatus: http.StatusNoContent,
	}, s.handlePutEmbedding)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-embedding",
		Method:        http.MethodDelete,
		Path:          "/api/v1/embeddings/{assetId}",
		Summary:       "Delete a stored embedding",
		Tags:          []string{"embeddings"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteEmbedding)
}
