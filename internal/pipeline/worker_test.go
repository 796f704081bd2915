// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package pipeline_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/fewshot/internal/pipeline"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
	"github.com/sigil-dev/fewshot/pkg/types"
)

func TestHTTPWorker(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["asset_id"] == "bad" {
			http.Error(w, "cannot annotate", http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := pipeline.NewHTTPWorker(types.StageAnnotated, srv.URL)

	require.NoError(t, w.Execute(context.Background(), "img-1"))
	assert.Equal(t, map[string]string{"asset_id": "img-1", "stage": "annotated"}, got)

	err := w.Execute(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeStageWorkerFailure))
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "cannot annotate")
}
