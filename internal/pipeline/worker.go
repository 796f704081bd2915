// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
)

// StageWorker performs one pipeline stage for an asset.
type StageWorker interface {
	Execute(ctx context.Context, assetID string) error
}

// StageWorkerFunc adapts a function to the StageWorker interface.
type StageWorkerFunc func(ctx context.Context, assetID string) error

// Execute calls f.
func (f StageWorkerFunc) Execute(ctx context.Context, assetID string) error {
	return f(ctx, assetID)
}

// Compile-time interface check.
var _ StageWorker = (*HTTPWorker)(nil)

// HTTPWorker delegates a stage to a remote service: it POSTs
// {"asset_id": ..., "stage": ...} to URL and treats any 2xx as success.
type HTTPWorker struct {
	Stage  types.Stage
	URL    string
	Client *http.Client
}

// NewHTTPWorker returns a worker for stage posting to url.
func NewHTTPWorker(stage types.Stage, url string) *HTTPWorker {
	return &HTTPWorker{Stage: stage, URL: url, Client: http.DefaultClient}
}

type workerRequest struct {
	AssetID string      `json:"asset_id"`
	Stage   types.Stage `json:"stage"`
}

func (w *HTTPWorker) Execute(ctx context.Context, assetID string) error {
	body, err := json.Marshal(workerRequest{AssetID: assetID, Stage: w.Stage})
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStageWorkerFailure, "encoding worker request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeStageWorkerFailure, "creating worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return sigilerr.New(sigilerr.CodeStageWorkerFailure,
			fmt.Sprintf("%s worker returned %d: %s", w.Stage, resp.StatusCode, bytes.TrimSpace(msg)),
			sigilerr.FieldStage(string(w.Stage)),
			sigilerr.FieldAssetID(assetID))
	}
	return nil
}
