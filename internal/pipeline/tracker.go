// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pipeline tracks each asset through the processing stages and
// drives stage workers for execution and retry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/sigil-dev/fewshot/internal/lane"
	"github.com/sigil-dev/fewshot/internal/store"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
)

// DefaultExecuteTimeout bounds a single worker invocation when
// Config.ExecuteTimeout is zero.
const DefaultExecuteTimeout = 5 * time.Minute

// messageKeys are the metadata keys consulted, in order, for an error message.
var messageKeys = []string{"error", "msg", "message"}

// RetryResult is the kind of outcome a Retry produced.
type RetryResult string

const (
	RetrySucceeded      RetryResult = "succeeded"
	RetryFailed         RetryResult = "failed"
	RetryNothingToRetry RetryResult = "nothing to retry"
)

// RetryOutcome reports what a Retry did.
type RetryOutcome struct {
	AssetID string      `json:"asset_id"`
	Stage   types.Stage `json:"stage,omitempty"`
	Result  RetryResult `json:"result"`
	Error   string      `json:"error,omitempty"`
}

// Config holds the Tracker settings.
type Config struct {
	Records store.TrackingStore
	Workers map[types.Stage]StageWorker
	// StrictOrdering rejects completing a stage more than one step past the
	// current stage and never moves the current stage backwards.
	StrictOrdering bool
	ExecuteTimeout time.Duration
}

// Tracker records per-asset stage progress. Updates for the same asset are
// serialised; different assets are independent. Worker runs (Execute and
// Retry) of the same asset are serialised on a separate lane.
type Tracker struct {
	cfg     Config
	records *lane.Pool
	runs    *lane.Pool
	nowFunc func() time.Time
}

// NewTracker returns a Tracker using cfg.
func NewTracker(cfg Config) *Tracker {
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = DefaultExecuteTimeout
	}
	if cfg.Workers == nil {
		cfg.Workers = make(map[types.Stage]StageWorker)
	}
	return &Tracker{
		cfg:     cfg,
		records: lane.NewPool("tracking"),
		runs:    lane.NewPool("stage-run"),
		nowFunc: time.Now,
	}
}

// Update records a stage status report for assetID, creating the record on
// first sight. An error report appends to the error list and leaves the
// current stage; a complete report advances it.
func (t *Tracker) Update(ctx context.Context, assetID string, stage types.Stage, status types.StageStatus, metadata map[string]any) (*store.TrackingRecord, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, sigilerr.New(sigilerr.CodeTrackingUpdateInvalid, "asset id is required")
	}
	if !stage.Valid() {
		return nil, sigilerr.Errorf(sigilerr.CodeTrackingUpdateInvalid, "invalid stage %q", stage)
	}
	if !status.Valid() {
		return nil, sigilerr.Errorf(sigilerr.CodeTrackingUpdateInvalid, "invalid stage status %q", status)
	}

	var out *store.TrackingRecord
	err := t.records.Do(ctx, assetID, func(ctx context.Context) error {
		rec, err := t.load(ctx, assetID)
		if err != nil {
			return err
		}

		now := t.nowFunc()
		if status == types.StageStatusComplete && t.cfg.StrictOrdering && stage.Index() > rec.CurrentStage.Index()+1 {
			return sigilerr.With(
				sigilerr.Errorf(sigilerr.CodeTrackingUpdateInvalid,
					"cannot complete %s while current stage is %s", stage, rec.CurrentStage),
				sigilerr.FieldAssetID(assetID),
				sigilerr.FieldStage(string(stage)))
		}

		rec.Stages[stage] = store.StageEntry{Status: status, Timestamp: now, Metadata: metadata}
		switch status {
		case types.StageStatusError:
			msg := errorMessage(stage, metadata)
			rec.Errors = append(rec.Errors, store.StageError{Stage: stage, Message: msg, Timestamp: now})
			slog.Warn("stage error recorded", "asset_id", assetID, "stage", stage, "error", msg)
		case types.StageStatusComplete:
			if !t.cfg.StrictOrdering || stage.Index() > rec.CurrentStage.Index() {
				rec.CurrentStage = stage
			}
		}
		rec.UpdatedAt = now

		if err := t.cfg.Records.Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// load returns the record for assetID or a fresh one.
func (t *Tracker) load(ctx context.Context, assetID string) (*store.TrackingRecord, error) {
	rec, err := t.cfg.Records.Get(ctx, assetID)
	if sigilerr.IsNotFound(err) {
		return store.NewTrackingRecord(assetID, t.nowFunc()), nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Stages == nil {
		rec.Stages = make(map[types.Stage]store.StageEntry)
	}
	return rec, nil
}

// errorMessage picks the first non-empty message from metadata.
func errorMessage(stage types.Stage, metadata map[string]any) string {
	for _, key := range messageKeys {
		v, ok := metadata[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return fmt.Sprintf("stage %s reported an error", stage)
}

// Ingest creates an empty record for assetID if none exists.
func (t *Tracker) Ingest(ctx context.Context, assetID string) (*store.TrackingRecord, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, sigilerr.New(sigilerr.CodeTrackingUpdateInvalid, "asset id is required")
	}

	var out *store.TrackingRecord
	err := t.records.Do(ctx, assetID, func(ctx context.Context) error {
		rec, err := t.cfg.Records.Get(ctx, assetID)
		if err == nil {
			out = rec
			return nil
		}
		if !sigilerr.IsNotFound(err) {
			return err
		}
		rec = store.NewTrackingRecord(assetID, t.nowFunc())
		if err := t.cfg.Records.Put(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the tracking record of assetID.
func (t *Tracker) Get(ctx context.Context, assetID string) (*store.TrackingRecord, error) {
	rec, err := t.cfg.Records.Get(ctx, assetID)
	if sigilerr.IsNotFound(err) {
		return nil, sigilerr.New(sigilerr.CodeTrackingNotFound, "no tracking record for asset", sigilerr.FieldAssetID(assetID))
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Status returns the number of assets per current stage. Every stage,
// including none, has a bucket.
func (t *Tracker) Status(ctx context.Context) (map[types.Stage]int, error) {
	recs, err := t.cfg.Records.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[types.Stage]int, len(types.Stages)+1)
	out[types.StageNone] = 0
	for _, st := range types.Stages {
		out[st] = 0
	}
	for _, rec := range recs {
		out[rec.CurrentStage]++
	}
	return out, nil
}

// Errors returns the records with at least one error, sorted by asset id.
func (t *Tracker) Errors(ctx context.Context) ([]*store.TrackingRecord, error) {
	recs, err := t.cfg.Records.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*store.TrackingRecord, 0)
	for _, rec := range recs {
		if len(rec.Errors) > 0 {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b *store.TrackingRecord) int {
		return strings.Compare(a.AssetID, b.AssetID)
	})
	return out, nil
}

// Execute runs the registered worker for stage on assetID and records the
// outcome: processing while running, then complete or error. The worker's
// error is returned after it has been recorded. It waits for any Execute or
// Retry already running for assetID.
func (t *Tracker) Execute(ctx context.Context, assetID string, stage types.Stage) error {
	var werr error
	err := t.runs.Do(ctx, assetID, func(ctx context.Context) error {
		var err error
		werr, err = t.execute(ctx, assetID, stage)
		return err
	})
	if err != nil {
		return err
	}
	return werr
}

// execute separates worker failures (werr, already recorded on the asset)
// from failures to validate or record (err).
func (t *Tracker) execute(ctx context.Context, assetID string, stage types.Stage) (werr, err error) {
	if !stage.Valid() {
		return nil, sigilerr.Errorf(sigilerr.CodeTrackingUpdateInvalid, "invalid stage %q", stage)
	}

	worker, ok := t.cfg.Workers[stage]
	if !ok {
		werr = sigilerr.With(
			sigilerr.Errorf(sigilerr.CodeStageWorkerMissing, "no worker registered for stage %s", stage),
			sigilerr.FieldStage(string(stage)))
		if _, err := t.Update(ctx, assetID, stage, types.StageStatusError, map[string]any{"error": werr.Error()}); err != nil {
			return nil, err
		}
		return werr, nil
	}

	if _, err := t.Update(ctx, assetID, stage, types.StageStatusProcessing, nil); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, t.cfg.ExecuteTimeout)
	werr = runWorker(execCtx, worker, assetID)
	cancel()

	// The outcome is recorded even when the caller's context is done.
	recordCtx := context.WithoutCancel(ctx)
	if werr != nil {
		werr = classifyWorkerErr(werr, assetID, stage)
		if _, err := t.Update(recordCtx, assetID, stage, types.StageStatusError, map[string]any{"error": werr.Error()}); err != nil {
			return nil, err
		}
		return werr, nil
	}

	if _, err := t.Update(recordCtx, assetID, stage, types.StageStatusComplete, nil); err != nil {
		return nil, err
	}
	return nil, nil
}

// runWorker calls worker.Execute with panic recovery and returns no later
// than ctx. A worker that ignores ctx keeps running in the background; its
// result is dropped.
func runWorker(ctx context.Context, worker StageWorker, assetID string) error {
	done := make(chan error, 1)
	go func() {
		done <- callWorker(ctx, worker, assetID)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		slog.Warn("stage worker abandoned", "asset_id", assetID, "error", ctx.Err())
		return ctx.Err()
	}
}

func callWorker(ctx context.Context, worker StageWorker, assetID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("stage worker panic recovered",
				"asset_id", assetID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = sigilerr.Errorf(sigilerr.CodeStageWorkerFailure, "worker panic: %v", r)
		}
	}()
	return worker.Execute(ctx, assetID)
}

func classifyWorkerErr(err error, assetID string, stage types.Stage) error {
	fields := []sigilerr.Attr{sigilerr.FieldAssetID(assetID), sigilerr.FieldStage(string(stage))}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sigilerr.With(sigilerr.Errorf(sigilerr.CodeStageWorkerTimeout, "%s worker timed out: %w", stage, err), fields...)
	case sigilerr.CodeOf(err) != "":
		return sigilerr.With(err, fields...)
	default:
		return sigilerr.With(sigilerr.Errorf(sigilerr.CodeStageWorkerFailure, "%s worker failed: %w", stage, err), fields...)
	}
}

// Retry re-executes the stage of the most recent error whose stage is still
// in error status. Worker failures are reported in the outcome, not as an
// error. It shares Execute's per-asset lane.
func (t *Tracker) Retry(ctx context.Context, assetID string) (*RetryOutcome, error) {
	var out *RetryOutcome
	err := t.runs.Do(ctx, assetID, func(ctx context.Context) error {
		rec, err := t.Get(ctx, assetID)
		if err != nil {
			return err
		}

		stage, ok := retryableStage(rec)
		if !ok {
			out = &RetryOutcome{AssetID: assetID, Result: RetryNothingToRetry}
			return nil
		}

		werr, err := t.execute(ctx, assetID, stage)
		if err != nil {
			return err
		}
		out = &RetryOutcome{AssetID: assetID, Stage: stage, Result: RetrySucceeded}
		if werr != nil {
			out.Result = RetryFailed
			out.Error = werr.Error()
		}
		slog.Info("retry finished", "asset_id", assetID, "stage", stage, "result", out.Result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retryableStage returns the stage of the newest error entry whose stage
// entry is still in error status.
func retryableStage(rec *store.TrackingRecord) (types.Stage, bool) {
	for i := len(rec.Errors) - 1; i >= 0; i-- {
		st := rec.Errors[i].Stage
		if entry, ok := rec.Stages[st]; ok && entry.Status == types.StageStatusError {
			return st, true
		}
	}
	return "", false
}
