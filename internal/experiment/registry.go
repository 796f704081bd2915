// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package experiment manages classification experiments: their lifecycle,
// runs, results, comparisons and lineage.
package experiment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/fewshot/internal/classify"
	"github.com/sigil-dev/fewshot/internal/embedding"
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// DefaultRunTimeout bounds a single run when Config.RunTimeout is zero.
const DefaultRunTimeout = 10 * time.Minute

// interruptedError is recorded on experiments left running by a previous process.
const interruptedError = "interrupted"

// SupportSetGetter resolves support sets by id.
type SupportSetGetter interface {
	Get(ctx context.Context, id string) (*store.SupportSet, error)
}

// QuerySetGetter resolves query sets by id.
type QuerySetGetter interface {
	Get(ctx context.Context, id string) (*store.QuerySet, error)
}

// Classifier produces predictions for a query set.
type Classifier interface {
	Classify(ctx context.Context, support *store.SupportSet, query *store.QuerySet,
		method classify.Method, threshold float32, src embedding.Provider) (map[string]store.Prediction, error)
}

// Config holds the collaborators of a Registry.
type Config struct {
	Experiments   store.ExperimentStore
	Results       store.ResultStore
	SupportSets   SupportSetGetter
	QuerySets     QuerySetGetter
	Engine        Classifier
	Embeddings    embedding.Provider
	RunTimeout    time.Duration
	DefaultMethod classify.Method
}

// CreateRequest describes a new experiment. An empty Method selects the
// registry default.
type CreateRequest struct {
	Name               string
	SupportSetID       string
	QuerySetID         string
	Method             string
	Threshold          float32
	ParentExperimentID string
}

// Comparison is one experiment's entry in a Compare result.
type Comparison struct {
	ExperimentID string        `json:"experiment_id"`
	Name         string        `json:"name"`
	SupportSetID string        `json:"support_set_id"`
	QuerySetID   string        `json:"query_set_id"`
	Method       string        `json:"method"`
	Threshold    float32       `json:"threshold"`
	Summary      store.Summary `json:"summary"`
}

// slot is what currently holds an experiment id in Registry.busy.
type slot string

const (
	slotRun    slot = "run"
	slotDelete slot = "delete"
)

// Registry owns experiment state. Runs of the same experiment are mutually
// exclusive: a second Run while one is in flight fails with invalid_state.
// Delete holds the same slot while it removes the records.
type Registry struct {
	cfg Config

	mu   sync.Mutex
	busy map[string]slot

	nowFunc func() time.Time // for testing
}

// NewRegistry returns a Registry using cfg.
func NewRegistry(cfg Config) *Registry {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = classify.MethodCosine
	}
	return &Registry{
		cfg:     cfg,
		busy:    make(map[string]slot),
		nowFunc: time.Now,
	}
}

// Create validates req and stores a new experiment in status created.
// Nothing is written when validation fails.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*store.Experiment, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, sigilerr.New(sigilerr.CodeExperimentCreateInvalid, "experiment name is required")
	}
	methodName := req.Method
	if methodName == "" {
		methodName = string(r.cfg.DefaultMethod)
	}
	method, err := classify.ParseMethod(methodName)
	if err != nil {
		return nil, err
	}
	if err := classify.ValidateThreshold(req.Threshold); err != nil {
		return nil, err
	}
	if _, err := r.cfg.SupportSets.Get(ctx, req.SupportSetID); err != nil {
		return nil, err
	}
	if _, err := r.cfg.QuerySets.Get(ctx, req.QuerySetID); err != nil {
		return nil, err
	}
	if req.ParentExperimentID != "" {
		if _, err := r.Get(ctx, req.ParentExperimentID); err != nil {
			return nil, err
		}
	}

	now := r.nowFunc()
	exp := &store.Experiment{
		ID:                 uuid.New().String(),
		Name:               strings.TrimSpace(req.Name),
		SupportSetID:       req.SupportSetID,
		QuerySetID:         req.QuerySetID,
		Method:             string(method),
		Threshold:          req.Threshold,
		Status:             store.ExperimentStatusCreated,
		ParentExperimentID: req.ParentExperimentID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.cfg.Experiments.Create(ctx, exp); err != nil {
		return nil, err
	}

	slog.Info("experiment created", "experiment_id", exp.ID, "method", exp.Method, "threshold", exp.Threshold)
	return exp, nil
}

// Get returns the experiment with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := r.cfg.Experiments.Get(ctx, id)
	if sigilerr.IsNotFound(err) {
		return nil, sigilerr.New(sigilerr.CodeExperimentNotFound, "experiment not found", sigilerr.FieldExperimentID(id))
	}
	if err != nil {
		return nil, err
	}
	return exp, nil
}

// List returns all experiments ordered by creation time.
func (r *Registry) List(ctx context.Context) ([]*store.Experiment, error) {
	return r.cfg.Experiments.List(ctx, store.ListOpts{})
}

// claim reserves id for s. On conflict it returns the current holder.
func (r *Registry) claim(id string, s slot) (slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.busy[id]; ok {
		return held, false
	}
	r.busy[id] = s
	return s, true
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.busy, id)
	r.mu.Unlock()
}

func busyErr(id string, held slot) error {
	msg := "experiment is already running"
	if held == slotDelete {
		msg = "experiment is being deleted"
	}
	return sigilerr.New(sigilerr.CodeExperimentStateInvalid, msg, sigilerr.FieldExperimentID(id))
}

// Run classifies the experiment's query set and records the outcome. It
// returns the experiment in its final state; classification failures,
// timeouts and cancellation leave it failed rather than returning an error.
func (r *Registry) Run(ctx context.Context, id string) (*store.Experiment, error) {
	if held, ok := r.claim(id, slotRun); !ok {
		return nil, busyErr(id, held)
	}
	defer r.release(id)

	exp, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(exp, store.ExperimentStatusRunning); err != nil {
		return nil, err
	}
	now := r.nowFunc()
	exp.StartedAt = now
	exp.FinishedAt = time.Time{}
	exp.UpdatedAt = now
	exp.Error = ""
	if err := r.cfg.Experiments.Update(ctx, exp); err != nil {
		return nil, err
	}

	slog.Info("experiment run started", "experiment_id", id)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()
	results, runErr := r.executeBounded(runCtx, exp)

	// The outcome is persisted even when the caller's context is done.
	finalCtx := context.WithoutCancel(ctx)
	if runErr == nil {
		runErr = r.cfg.Results.Put(finalCtx, results)
	}

	if runErr != nil {
		runErr = classifyRunErr(runErr, id)
		if err := r.cfg.Results.Delete(finalCtx, id); err != nil {
			slog.Error("dropping stale results", "experiment_id", id, "error", err)
		}
		exp.ResultsRef = ""
		exp.Error = runErr.Error()
		_ = transition(exp, store.ExperimentStatusFailed)
	} else {
		exp.ResultsRef = id
		_ = transition(exp, store.ExperimentStatusCompleted)
	}
	now = r.nowFunc()
	exp.FinishedAt = now
	exp.UpdatedAt = now
	if err := r.cfg.Experiments.Update(finalCtx, exp); err != nil {
		return nil, err
	}

	if runErr != nil {
		slog.Warn("experiment run failed", "experiment_id", id, "error", runErr)
	} else {
		slog.Info("experiment run completed", "experiment_id", id,
			"total", results.Summary.Total, "unknown", results.Summary.UnknownCount)
	}
	return exp, nil
}

type runOutcome struct {
	results *store.ExperimentResults
	err     error
}

// executeBounded returns when execute does or when ctx is done, whichever
// comes first. A collaborator that ignores ctx is left to finish on its own;
// its late outcome is discarded.
func (r *Registry) executeBounded(ctx context.Context, exp *store.Experiment) (*store.ExperimentResults, error) {
	done := make(chan runOutcome, 1)
	go func() {
		res, err := r.execute(ctx, exp)
		done <- runOutcome{results: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return out.results, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) execute(ctx context.Context, exp *store.Experiment) (*store.ExperimentResults, error) {
	support, err := r.cfg.SupportSets.Get(ctx, exp.SupportSetID)
	if err != nil {
		return nil, err
	}
	query, err := r.cfg.QuerySets.Get(ctx, exp.QuerySetID)
	if err != nil {
		return nil, err
	}

	predictions, err := r.cfg.Engine.Classify(ctx, support, query, classify.Method(exp.Method), exp.Threshold, r.cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	return &store.ExperimentResults{
		ExperimentID: exp.ID,
		Predictions:  predictions,
		Summary:      classify.Summarize(predictions),
		CreatedAt:    r.nowFunc(),
	}, nil
}

// classifyRunErr gives context errors a run code; coded errors keep theirs.
func classifyRunErr(err error, id string) error {
	switch {
	case sigilerr.CodeOf(err) != "":
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return sigilerr.Errorf(sigilerr.CodeExperimentRunTimeout, "experiment %s run timed out: %w", id, err)
	default:
		return sigilerr.Errorf(sigilerr.CodeExperimentRunFailure, "experiment %s run failed: %w", id, err)
	}
}

// Results returns the predictions of a completed experiment.
func (r *Registry) Results(ctx context.Context, id string) (*store.ExperimentResults, error) {
	exp, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.ExperimentStatusCompleted {
		return nil, sigilerr.With(
			sigilerr.Errorf(sigilerr.CodeExperimentStateInvalid, "experiment is %s, not completed", exp.Status),
			sigilerr.FieldExperimentID(id))
	}
	return r.cfg.Results.Get(ctx, id)
}

// Compare returns the summaries of completed experiments in input order.
func (r *Registry) Compare(ctx context.Context, ids []string) ([]Comparison, error) {
	if len(ids) == 0 {
		return nil, sigilerr.New(sigilerr.CodeExperimentCompareInvalid, "compare needs at least one experiment id")
	}

	exps := make([]*store.Experiment, len(ids))
	for i, id := range ids {
		exp, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		exps[i] = exp
	}
	for _, exp := range exps {
		if exp.Status != store.ExperimentStatusCompleted {
			return nil, sigilerr.With(
				sigilerr.Errorf(sigilerr.CodeExperimentStateInvalid, "experiment %s is %s, not completed", exp.ID, exp.Status),
				sigilerr.FieldExperimentID(exp.ID))
		}
	}

	out := make([]Comparison, len(exps))
	for i, exp := range exps {
		res, err := r.cfg.Results.Get(ctx, exp.ID)
		if err != nil {
			return nil, err
		}
		out[i] = Comparison{
			ExperimentID: exp.ID,
			Name:         exp.Name,
			SupportSetID: exp.SupportSetID,
			QuerySetID:   exp.QuerySetID,
			Method:       exp.Method,
			Threshold:    exp.Threshold,
			Summary:      res.Summary,
		}
	}
	return out, nil
}

// Delete removes an experiment and its results. Support and query sets are
// never touched.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if held, ok := r.claim(id, slotDelete); !ok {
		if held == slotRun {
			return sigilerr.New(sigilerr.CodeExperimentStateInvalid, "cannot delete a running experiment",
				sigilerr.FieldExperimentID(id))
		}
		return busyErr(id, held)
	}
	defer r.release(id)

	exp, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if exp.Status == store.ExperimentStatusRunning {
		return sigilerr.New(sigilerr.CodeExperimentStateInvalid, "cannot delete a running experiment",
			sigilerr.FieldExperimentID(id))
	}

	if err := r.cfg.Results.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.cfg.Experiments.Delete(ctx, id); err != nil {
		return err
	}

	slog.Info("experiment deleted", "experiment_id", id)
	return nil
}

// Lineage returns id followed by its ancestors, nearest first. Resolution
// stops at the first missing ancestor.
func (r *Registry) Lineage(ctx context.Context, id string) ([]*store.Experiment, error) {
	exp, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chain := []*store.Experiment{exp}
	seen := map[string]bool{exp.ID: true}
	for parentID := exp.ParentExperimentID; parentID != "" && !seen[parentID]; {
		parent, err := r.cfg.Experiments.Get(ctx, parentID)
		if sigilerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		seen[parentID] = true
		parentID = parent.ParentExperimentID
	}
	return chain, nil
}

// Recover marks experiments persisted as running, but not running in this
// process, as failed. It returns the number of experiments recovered.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	stale, err := r.cfg.Experiments.ListByStatus(ctx, store.ExperimentStatusRunning)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, exp := range stale {
		if _, ok := r.claim(exp.ID, slotRun); !ok {
			continue
		}
		err := func() error {
			defer r.release(exp.ID)
			if err := r.cfg.Results.Delete(ctx, exp.ID); err != nil {
				return err
			}
			_ = transition(exp, store.ExperimentStatusFailed)
			now := r.nowFunc()
			exp.Error = interruptedError
			exp.ResultsRef = ""
			exp.FinishedAt = now
			exp.UpdatedAt = now
			return r.cfg.Experiments.Update(ctx, exp)
		}()
		if err != nil {
			return recovered, err
		}
		slog.Warn("experiment marked failed after interrupted run", "experiment_id", exp.ID)
		recovered++
	}
	return recovered, nil
}
