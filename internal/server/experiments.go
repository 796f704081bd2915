// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/fewshot/internal/experiment"
)

type createExperimentInput struct {
	Body struct {
		Name               string   `json:"name" doc:"Experiment name"`
		SupportSetID       string   `json:"support_set_id" doc:"Support set version to classify against"`
		QuerySetID         string   `json:"query_set_id" doc:"Query set to classify"`
		Method             string   `json:"method,omitempty" doc:"cosine or centroid; server default when empty"`
		Threshold          *float32 `json:"threshold,omitempty" doc:"Minimum confidence in [0, 1]; server default when absent"`
		ParentExperimentID string   `json:"parent_experiment_id,omitempty" doc:"Experiment this one was derived from"`
	}
}

type experimentOutput struct {
	Body Experiment
}

type experimentListOutput struct {
	Body struct {
		Experiments []Experiment `json:"experiments"`
	}
}

type experimentResultsOutput struct {
	Body ExperimentResults
}

type compareExperimentsInput struct {
	Body struct {
		IDs []string `json:"ids" doc:"Completed experiments to compare, in output order"`
	}
}

type compareExperimentsOutput struct {
	Body struct {
		Experiments []experiment.Comparison `json:"experiments"`
	}
}

func (s *Server) handleCreateExperiment(ctx context.Context, input *createExperimentInput) (*experimentOutput, error) {
	threshold := s.cfg.DefaultThreshold
	if input.Body.Threshold != nil {
		threshold = *input.Body.Threshold
	}
	exp, err := s.services.experiments.Create(ctx, experiment.CreateRequest{
		Name:               input.Body.Name,
		SupportSetID:       input.Body.SupportSetID,
		QuerySetID:         input.Body.QuerySetID,
		Method:             input.Body.Method,
		Threshold:          threshold,
		ParentExperimentID: input.Body.ParentExperimentID,
	})
	if err != nil {
		return nil, apiError("creating experiment", err)
	}
	return &experimentOutput{Body: toExperiment(exp)}, nil
}

func (s *Server) handleListExperiments(ctx context.Context, _ *struct{}) (*experimentListOutput, error) {
	exps, err := s.services.experiments.List(ctx)
	if err != nil {
		return nil, apiError("listing experiments", err)
	}
	out := &experimentListOutput{}
	out.Body.Experiments = toExperiments(exps)
	return out, nil
}

func (s *Server) handleGetExperiment(ctx context.Context, input *idInput) (*experimentOutput, error) {
	exp, err := s.services.experiments.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError("getting experiment", err)
	}
	return &experimentOutput{Body: toExperiment(exp)}, nil
}

// handleRunExperiment blocks until the run reaches completed or failed. A
// failed run is still a 200; the failure is in the experiment's error field.
func (s *Server) handleRunExperiment(ctx context.Context, input *idInput) (*experimentOutput, error) {
	exp, err := s.services.experiments.Run(ctx, input.ID)
	if err != nil {
		return nil, apiError("running experiment", err)
	}
	return &experimentOutput{Body: toExperiment(exp)}, nil
}

func (s *Server) handleExperimentResults(ctx context.Context, input *idInput) (*experimentResultsOutput, error) {
	res, err := s.services.experiments.Results(ctx, input.ID)
	if err != nil {
		return nil, apiError("getting experiment results", err)
	}
	return &experimentResultsOutput{Body: ExperimentResults{
		ExperimentID: res.ExperimentID,
		Predictions:  res.Predictions,
		Summary:      res.Summary,
		CreatedAt:    res.CreatedAt,
	}}, nil
}

func (s *Server) handleCompareExperiments(ctx context.Context, input *compareExperimentsInput) (*compareExperimentsOutput, error) {
	cmp, err := s.services.experiments.Compare(ctx, input.Body.IDs)
	if err != nil {
		return nil, apiError("comparing experiments", err)
	}
	out := &compareExperimentsOutput{}
	out.Body.Experiments = cmp
	return out, nil
}

func (s *Server) handleExperimentLineage(ctx context.Context, input *idInput) (*experimentListOutput, error) {
	exps, err := s.services.experiments.Lineage(ctx, input.ID)
	if err != nil {
		return nil, apiError("walking experiment lineage", err)
	}
	out := &experimentListOutput{}
	out.Body.Experiments = toExperiments(exps)
	return out, nil
}

func (s *Server) handleDeleteExperiment(ctx context.Context, input *idInput) (*struct{}, error) {
	if err := s.services.experiments.Delete(ctx, input.ID); err != nil {
		return nil, apiError("deleting experiment", err)
	}
	return nil, nil
}
