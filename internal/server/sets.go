// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
)

type idInput struct {
	ID string `path:"id"`
}

type createSupportSetInput struct {
	Body struct {
		Name    string              `json:"name" doc:"Support set name"`
		Classes map[string][]string `json:"classes" doc:"Class label to example asset ids"`
	}
}

type supportSetOutput struct {
	Body SupportSet
}

type supportSetListOutput struct {
	Body struct {
		SupportSets []SupportSet `json:"support_sets"`
	}
}

type createQuerySetInput struct {
	Body struct {
		Name     string   `json:"name" doc:"Query set name"`
		AssetIDs []string `json:"asset_ids" doc:"Assets to classify, in order"`
	}
}

type querySetOutput struct {
	Body QuerySet
}

type querySetListOutput struct {
	Body struct {
		QuerySets []QuerySet `json:"query_sets"`
	}
}

func (s *Server) handleCreateSupportSet(ctx context.Context, input *createSupportSetInput) (*supportSetOutput, error) {
	set, err := s.services.supportSets.Create(ctx, input.Body.Name, input.Body.Classes)
	if err != nil {
		return nil, apiError("creating support set", err)
	}
	return &supportSetOutput{Body: toSupportSet(set)}, nil
}

func (s *Server) handleListSupportSets(ctx context.Context, _ *struct{}) (*supportSetListOutput, error) {
	sets, err := s.services.supportSets.List(ctx)
	if err != nil {
		return nil, apiError("listing support sets", err)
	}
	out := &supportSetListOutput{}
	out.Body.SupportSets = toSupportSets(sets)
	return out, nil
}

func (s *Server) handleGetSupportSet(ctx context.Context, input *idInput) (*supportSetOutput, error) {
	set, err := s.services.supportSets.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError("getting support set", err)
	}
	return &supportSetOutput{Body: toSupportSet(set)}, nil
}

func (s *Server) handleCloneSupportSet(ctx context.Context, input *idInput) (*supportSetOutput, error) {
	set, err := s.services.supportSets.Clone(ctx, input.ID)
	if err != nil {
		return nil, apiError("cloning support set", err)
	}
	return &supportSetOutput{Body: toSupportSet(set)}, nil
}

func (s *Server) handleSupportSetLineage(ctx context.Context, input *idInput) (*supportSetListOutput, error) {
	sets, err := s.services.supportSets.Lineage(ctx, input.ID)
	if err != nil {
		return nil, apiError("listing support set lineage", err)
	}
	out := &supportSetListOutput{}
	out.Body.SupportSets = toSupportSets(sets)
	return out, nil
}

func (s *Server) handleCreateQuerySet(ctx context.Context, input *createQuerySetInput) (*querySetOutput, error) {
	set, err := s.services.querySets.Create(ctx, input.Body.Name, input.Body.AssetIDs)
	if err != nil {
		return nil, apiError("creating query set", err)
	}
	return &querySetOutput{Body: toQuerySet(set)}, nil
}

func (s *Server) handleListQuerySets(ctx context.Context, _ *struct{}) (*querySetListOutput, error) {
	sets, err := s.services.querySets.List(ctx)
	if err != nil {
		return nil, apiError("listing query sets", err)
	}
	out := &querySetListOutput{}
	out.Body.QuerySets = make([]QuerySet, 0, len(sets))
	for _, q := range sets {
		out.Body.QuerySets = append(out.Body.QuerySets, toQuerySet(q))
	}
	return out, nil
}

func (s *Server) handleGetQuerySet(ctx context.Context, input *idInput) (*querySetOutput, error) {
	set, err := s.services.querySets.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError("getting query set", err)
	}
	return &querySetOutput{Body: toQuerySet(set)}, nil
}
