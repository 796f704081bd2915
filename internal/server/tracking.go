// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/fewshot/internal/pipeline"
	"github.com/sigil-dev/fewshot/pkg/types"
)

type assetIDInput struct {
	AssetID string `path:"assetId"`
}

type updateTrackingInput struct {
	AssetID string `path:"assetId"`
	Body    struct {
		Stage    string         `json:"stage" doc:"Reported stage: uploaded, annotated, preprocessed or classified"`
		Status   string         `json:"status" doc:"Reported status: pending, processing, complete or error"`
		Metadata map[string]any `json:"metadata,omitempty" doc:"Free-form details; error, msg or message become the error text"`
	}
}

type executeStageInput struct {
	AssetID string `path:"assetId"`
	Stage   string `path:"stage"`
}

type trackingRecordOutput struct {
	Body TrackingRecord
}

type trackingStatusOutput struct {
	Body struct {
		Counts map[types.Stage]int `json:"counts" doc:"Assets per current stage, including none"`
	}
}

type trackingErrorsOutput struct {
	Body struct {
		Records []TrackingRecord `json:"records"`
	}
}

type retryOutput struct {
	Body pipeline.RetryOutcome
}

func (s *Server) handleUpdateTracking(ctx context.Context, input *updateTrackingInput) (*trackingRecordOutput, error) {
	stage, err := types.ParseStage(input.Body.Stage)
	if err != nil {
		return nil, apiError("updating tracking", err)
	}
	status, err := types.ParseStageStatus(input.Body.Status)
	if err != nil {
		return nil, apiError("updating tracking", err)
	}
	rec, err := s.services.tracking.Update(ctx, input.AssetID, stage, status, input.Body.Metadata)
	if err != nil {
		return nil, apiError("updating tracking", err)
	}
	return &trackingRecordOutput{Body: toTrackingRecord(rec)}, nil
}

func (s *Server) handleIngestTracking(ctx context.Context, input *assetIDInput) (*trackingRecordOutput, error) {
	rec, err := s.services.tracking.Ingest(ctx, input.AssetID)
	if err != nil {
		return nil, apiError("ingesting asset", err)
	}
	return &trackingRecordOutput{Body: toTrackingRecord(rec)}, nil
}

func (s *Server) handleGetTracking(ctx context.Context, input *assetIDInput) (*trackingRecordOutput, error) {
	rec, err := s.services.tracking.Get(ctx, input.AssetID)
	if err != nil {
		return nil, apiError("getting tracking record", err)
	}
	return &trackingRecordOutput{Body: toTrackingRecord(rec)}, nil
}

func (s *Server) handleTrackingStatus(ctx context.Context, _ *struct{}) (*trackingStatusOutput, error) {
	counts, err := s.services.tracking.Status(ctx)
	if err != nil {
		return nil, apiError("counting tracking records", err)
	}
	out := &trackingStatusOutput{}
	out.Body.Counts = counts
	return out, nil
}

func (s *Server) handleTrackingErrors(ctx context.Context, _ *struct{}) (*trackingErrorsOutput, error) {
	recs, err := s.services.tracking.Errors(ctx)
	if err != nil {
		return nil, apiError("listing tracking errors", err)
	}
	out := &trackingErrorsOutput{}
	out.Body.Records = make([]TrackingRecord, 0, len(recs))
	for _, rec := range recs {
		out.Body.Records = append(out.Body.Records, toTrackingRecord(rec))
	}
	return out, nil
}

// handleExecuteStage runs the stage worker. Worker failures are already on
// the record and are reported as 502.
func (s *Server) handleExecuteStage(ctx context.Context, input *executeStageInput) (*trackingRecordOutput, error) {
	stage, err := types.ParseStage(input.Stage)
	if err != nil {
		return nil, apiError("executing stage", err)
	}
	if err := s.services.tracking.Execute(ctx, input.AssetID, stage); err != nil {
		if isWorkerFailure(err) {
			return nil, huma.Error502BadGateway(err.Error())
		}
		return nil, apiError("executing stage", err)
	}
	rec, err := s.services.tracking.Get(ctx, input.AssetID)
	if err != nil {
		return nil, apiError("executing stage", err)
	}
	return &trackingRecordOutput{Body: toTrackingRecord(rec)}, nil
}

func (s *Server) handleRetryTracking(ctx context.Context, input *assetIDInput) (*retryOutput, error) {
	outcome, err := s.services.tracking.Retry(ctx, input.AssetID)
	if err != nil {
		return nil, apiError("retrying stage", err)
	}
	return &retryOutput{Body: *outcome}, nil
}
