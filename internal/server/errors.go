// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// apiError maps a service error onto an HTTP problem response. Internal
// failures are logged and reported without their detail.
func apiError(op string, err error) error {
	status := sigilerr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "op", op, "code", sigilerr.CodeOf(err), "error", err)
		return huma.Error500InternalServerError(op + " failed")
	}
	return huma.NewError(status, err.Error())
}

// isWorkerFailure reports whether err came from a stage worker rather than
// from the tracker itself.
func isWorkerFailure(err error) bool {
	switch sigilerr.CodeOf(err) {
	case sigilerr.CodeStageWorkerFailure, sigilerr.CodeStageWorkerMissing:
		return true
	}
	return false
}
