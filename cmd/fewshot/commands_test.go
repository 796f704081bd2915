// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/fewshot/internal/config"
	"github.com/sigil-dev/fewshot/internal/secrets"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

// isolate resets the global viper and points HOME at a temp dir so no user
// config leaks into a test.
func isolate(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
}

// run executes the root command with args and returns combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// mustRun is run that fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "fewshot %s: %s", strings.Join(args, " "), out)
	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("storage.backend", "memory")
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

// testSetupServer wires a memory-backed app behind httptest, overrides
// defaultHTTPClient and returns the server address (host:port).
func testSetupServer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	app, err := Wire(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)

	srv := httptest.NewServer(app.Server.Handler())
	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	t.Cleanup(func() {
		defaultHTTPClient = old
		srv.Close()
		_ = app.Close()
	})
	return strings.TrimPrefix(srv.URL, "http://")
}

var createdRE = regexp.MustCompile(`Created (?:support set|query set|experiment) (\S+)`)

// createdID extracts the id from a "Created <kind> <id>" line.
func createdID(t *testing.T, out string) string {
	t.Helper()
	m := createdRE.FindStringSubmatch(out)
	require.Len(t, m, 2, "no id in output: %q", out)
	return m[1]
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCommand_Help(t *testing.T) {
	isolate(t)
	out := mustRun(t, "--help")
	for _, want := range []string{"fewshot", "serve", "supportset", "queryset", "experiment", "tracking", "embedding", "secret", "config"} {
		assert.Contains(t, out, want)
	}
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out := mustRun(t, "version")
	assert.Contains(t, out, "fewshot")
	assert.Contains(t, out, "commit:")

	assert.Equal(t, version+"\n", mustRun(t, "version", "--short"))
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	isolate(t)
	path := writeFile(t, "fewshot.yaml", "storage:\n  backend: nope\n")

	_, err := run(t, "serve", "--config", path)
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err) || strings.Contains(err.Error(), "storage.backend"), err.Error())
}

func TestClientCommand_ServerNotRunning(t *testing.T) {
	isolate(t)
	_, err := run(t, "experiment", "list", "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIServerNotRunning), err.Error())
}

const testVectors = `
cat-1: [1.0, 0.0]
cat-2: [0.9, 0.1]
dog-1: [0.0, 1.0]
q-1: [0.95, 0.05]
q-2: [0.05, 0.95]
`

const testClasses = `
name: pets
classes:
  cat: [cat-1, cat-2]
  dog: [dog-1]
`

func TestExperimentWorkflow(t *testing.T) {
	isolate(t)
	addr := testSetupServer(t, testConfig(t))

	out := mustRun(t, "embedding", "import", "-f", writeFile(t, "vectors.yaml", testVectors), "--address", addr)
	assert.Contains(t, out, "Imported 5 embeddings")

	classes := writeFile(t, "classes.yaml", testClasses)
	supportID := createdID(t, mustRun(t, "supportset", "create", "-f", classes, "--address", addr))

	queryFile := writeFile(t, "queries.txt", "# queries\nq-2\n\n")
	queryID := createdID(t, mustRun(t, "queryset", "create", "--name", "batch", "q-1", "-f", queryFile, "--address", addr))

	out = mustRun(t, "queryset", "get", queryID, "--address", addr)
	assert.Contains(t, out, `"q-1"`)
	assert.Contains(t, out, `"q-2"`)

	expID := createdID(t, mustRun(t, "experiment", "create",
		"--name", "baseline", "--support-set", supportID, "--query-set", queryID, "--address", addr))

	out = mustRun(t, "experiment", "run", expID, "--address", addr)
	assert.Contains(t, out, "completed")

	out = mustRun(t, "experiment", "results", expID, "--address", addr)
	assert.Regexp(t, `q-1\s+cat`, out)
	assert.Regexp(t, `q-2\s+dog`, out)
	assert.Contains(t, out, "Total: 2")

	// A derived experiment on a cloned support set.
	cloneID := createdID(t, mustRun(t, "supportset", "clone", supportID, "--address", addr))
	out = mustRun(t, "supportset", "lineage", cloneID, "--address", addr)
	assert.Contains(t, out, supportID)
	assert.Contains(t, out, cloneID)

	childID := createdID(t, mustRun(t, "experiment", "create",
		"--name", "centroid", "--support-set", cloneID, "--query-set", queryID,
		"--method", "centroid", "--threshold", "0.2", "--parent", expID, "--address", addr))
	mustRun(t, "experiment", "run", childID, "--address", addr)

	out = mustRun(t, "experiment", "compare", expID, childID, "--address", addr)
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "centroid")

	out = mustRun(t, "experiment", "lineage", childID, "--address", addr)
	assert.Contains(t, out, expID)

	out = mustRun(t, "experiment", "list", "--address", addr)
	assert.Contains(t, out, "baseline")
	assert.Contains(t, out, "completed")

	mustRun(t, "experiment", "delete", childID, "--address", addr)
	_, err := run(t, "experiment", "get", childID, "--address", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestExperimentCreate_BadThreshold(t *testing.T) {
	isolate(t)
	addr := testSetupServer(t, testConfig(t))

	_, err := run(t, "experiment", "create", "--name", "x", "--support-set", "s", "--query-set", "q",
		"--threshold", "1.5", "--address", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSupportSetList_Empty(t *testing.T) {
	isolate(t)
	addr := testSetupServer(t, testConfig(t))

	out := mustRun(t, "supportset", "list", "--address", addr)
	assert.Contains(t, out, "No support sets.")
}

func TestTrackingWorkflow(t *testing.T) {
	isolate(t)

	var mu sync.Mutex
	var calls []string
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(worker.Close)

	cfg := testConfig(t)
	cfg.Pipeline.Workers = map[string]config.WorkerConfig{"annotated": {URL: worker.URL + "/annotate"}}
	addr := testSetupServer(t, cfg)

	out := mustRun(t, "tracking", "ingest", "img-1", "img-2", "--address", addr)
	assert.Contains(t, out, "img-2: none")

	out = mustRun(t, "tracking", "update", "img-1", "--stage", "uploaded", "--status", "complete", "--address", addr)
	assert.Contains(t, out, "current stage: uploaded")

	mustRun(t, "tracking", "update", "img-1", "--stage", "annotated", "--status", "error",
		"--meta", "error=bad label", "--address", addr)

	out = mustRun(t, "tracking", "errors", "--address", addr)
	assert.Contains(t, out, "img-1")
	assert.Contains(t, out, "annotated: bad label")

	out = mustRun(t, "tracking", "retry", "img-1", "--address", addr)
	assert.Contains(t, out, "retried annotated")
	mu.Lock()
	assert.Equal(t, []string{"/annotate"}, calls)
	mu.Unlock()

	out = mustRun(t, "tracking", "retry", "img-1", "--address", addr)
	assert.Contains(t, out, "nothing to retry")

	out = mustRun(t, "tracking", "get", "img-1", "--address", addr)
	assert.Regexp(t, `annotated\s+complete`, out)
	assert.Contains(t, out, "bad label")

	// No worker for preprocessed: recorded as an error, reported as 502.
	_, err := run(t, "tracking", "execute", "img-1", "preprocessed", "--address", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	out = mustRun(t, "tracking", "status", "--address", addr)
	assert.Regexp(t, `annotated\s+1`, out)
	assert.Regexp(t, `none\s+1`, out)
}

func TestTrackingUpdate_InvalidStage(t *testing.T) {
	isolate(t)
	_, err := run(t, "tracking", "update", "img-1", "--stage", "shipped", "--status", "complete", "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidInput(err), err.Error())
}

func TestEmbeddingCommands(t *testing.T) {
	isolate(t)
	addr := testSetupServer(t, testConfig(t))

	out := mustRun(t, "embedding", "put", "a-1", "0.5, 0.5, 0", "--address", addr)
	assert.Contains(t, out, "3 dims")

	_, err := run(t, "embedding", "put", "a-1", "0.5,abc", "--address", addr)
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeCLIInputInvalid))

	mustRun(t, "embedding", "delete", "a-1", "--address", addr)

	out = mustRun(t, "embedding", "health", "--address", addr)
	assert.Contains(t, out, "store: available")
}

// memSecretStore is an in-memory secrets.Store.
type memSecretStore struct {
	data map[string]string
}

func (m *memSecretStore) Get(service, key string) (string, error) {
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return v, nil
}

func (m *memSecretStore) Set(service, key, value string) error {
	m.data[service+"/"+key] = value
	return nil
}

func (m *memSecretStore) Delete(service, key string) error {
	if _, ok := m.data[service+"/"+key]; !ok {
		return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	delete(m.data, service+"/"+key)
	return nil
}

func useMemSecrets(t *testing.T) *memSecretStore {
	t.Helper()
	m := &memSecretStore{data: map[string]string{}}
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return m }
	t.Cleanup(func() { secretStoreFactory = old })
	return m
}

func TestSecretCommands(t *testing.T) {
	isolate(t)
	m := useMemSecrets(t)

	out := mustRun(t, "secret", "set", "fewshot/openai", "--value", "sk-test")
	assert.Contains(t, out, "keyring://fewshot/openai")
	assert.Equal(t, "sk-test", m.data["fewshot/openai"])

	root := NewRootCmd()
	root.SetIn(strings.NewReader("from-stdin\n"))
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"secret", "set", "keyring://fewshot/other"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "from-stdin", m.data["fewshot/other"])

	mustRun(t, "secret", "delete", "fewshot/openai")
	assert.NotContains(t, m.data, "fewshot/openai")

	_, err := run(t, "secret", "delete", "fewshot/openai")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretNotFound))

	_, err = run(t, "secret", "set", "no-key", "--value", "x")
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeSecretInvalidInput))
}

func TestConfigCommands(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "fewshot.yaml")

	out := mustRun(t, "config", "init", "--path", path)
	assert.Contains(t, out, "Wrote default config")

	out = mustRun(t, "config", "init", "--path", path)
	assert.Contains(t, out, "Config not written")

	out = mustRun(t, "config", "validate", "--config", path)
	assert.Contains(t, out, "Config OK")

	bad := writeFile(t, "bad.yaml", "classification:\n  default_threshold: 2\n  default_method: knn\n")
	_, err := run(t, "config", "validate", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_threshold")
	assert.Contains(t, err.Error(), "default_method")
}
