// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package experiment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/fewshot/internal/classify"
	"github.com/sigil-dev/fewshot/internal/embedding"
	"github.com/sigil-dev/fewshot/internal/experiment"
	"github.com/sigil-dev/fewshot/internal/queryset"
	"github.com/sigil-dev/fewshot/internal/store"
	"github.com/sigil-dev/fewshot/internal/store/memory"
	"github.com/sigil-dev/fewshot/internal/supportset"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

type fixture struct {
	store    *memory.Store
	registry *experiment.Registry
	support  *store.SupportSet
	query    *store.QuerySet
}

// newFixture seeds a two-class support set, a three-asset query set and
// their embeddings. engine overrides the real classification engine.
func newFixture(t *testing.T, engine experiment.Classifier, runTimeout time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()

	for id, vec := range map[string][]float32{
		"s0": {1, 0}, "s1": {0, 1},
		"q0": {1, 0.1}, "q1": {0.1, 1}, "q2": {0.7, 0.7},
	} {
		require.NoError(t, st.Embeddings().Put(ctx, id, vec))
	}

	supports := supportset.NewService(st.SupportSets())
	queries := queryset.NewService(st.QuerySets())
	support, err := supports.Create(ctx, "axes", map[string][]string{"x": {"s0"}, "y": {"s1"}})
	require.NoError(t, err)
	query, err := queries.Create(ctx, "batch", []string{"q0", "q1", "q2"})
	require.NoError(t, err)

	if engine == nil {
		engine = classify.NewEngine(2)
	}
	reg := experiment.NewRegistry(experiment.Config{
		Experiments: st.Experiments(),
		Results:     st.Results(),
		SupportSets: supports,
		QuerySets:   queries,
		Engine:      engine,
		Embeddings:  embedding.NewStoreProvider(st.Embeddings()),
		RunTimeout:  runTimeout,
	})
	return &fixture{store: st, registry: reg, support: support, query: query}
}

func (f *fixture) create(t *testing.T, name string, threshold float32) *store.Experiment {
	t.Helper()
	exp, err := f.registry.Create(context.Background(), experiment.CreateRequest{
		Name:         name,
		SupportSetID: f.support.ID,
		QuerySetID:   f.query.ID,
		Method:       "cosine",
		Threshold:    threshold,
	})
	require.NoError(t, err)
	return exp
}

// blockingEngine blocks in Classify until released or its context ends.
type blockingEngine struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingEngine) Classify(ctx context.Context, _ *store.SupportSet, query *store.QuerySet,
	_ classify.Method, _ float32, _ embedding.Provider,
) (map[string]store.Prediction, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		out := make(map[string]store.Prediction, len(query.AssetIDs))
		for _, id := range query.AssetIDs {
			out[id] = store.Prediction{PredictedClass: "x", Confidence: 1, Margin: 1}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRegistry_CreateValidation(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   experiment.CreateRequest
		check func(error) bool
	}{
		{"empty name", experiment.CreateRequest{SupportSetID: f.support.ID, QuerySetID: f.query.ID}, sigilerr.IsInvalidInput},
		{"unknown method", experiment.CreateRequest{Name: "e", SupportSetID: f.support.ID, QuerySetID: f.query.ID, Method: "knn"}, sigilerr.IsInvalidInput},
		{"threshold above one", experiment.CreateRequest{Name: "e", SupportSetID: f.support.ID, QuerySetID: f.query.ID, Threshold: 1.5}, sigilerr.IsInvalidInput},
		{"missing support set", experiment.CreateRequest{Name: "e", SupportSetID: "nope", QuerySetID: f.query.ID}, sigilerr.IsNotFound},
		{"missing query set", experiment.CreateRequest{Name: "e", SupportSetID: f.support.ID, QuerySetID: "nope"}, sigilerr.IsNotFound},
		{"missing parent", experiment.CreateRequest{Name: "e", SupportSetID: f.support.ID, QuerySetID: f.query.ID, ParentExperimentID: "nope"}, sigilerr.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.Create(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}

	all, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "failed validation must not write")
}

func TestRegistry_CreateDefaultsMethod(t *testing.T) {
	f := newFixture(t, nil, 0)
	exp, err := f.registry.Create(context.Background(), experiment.CreateRequest{
		Name: "e", SupportSetID: f.support.ID, QuerySetID: f.query.ID, Threshold: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "cosine", exp.Method)
	assert.Equal(t, store.ExperimentStatusCreated, exp.Status)
}

func TestRegistry_RunCompletes(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	exp := f.create(t, "baseline", 0.8)

	done, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusCompleted, done.Status)
	assert.Equal(t, exp.ID, done.ResultsRef)
	assert.False(t, done.StartedAt.IsZero())
	assert.False(t, done.FinishedAt.IsZero())

	res, err := f.registry.Results(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", res.Predictions["q0"].PredictedClass)
	assert.Equal(t, "y", res.Predictions["q1"].PredictedClass)
	assert.Equal(t, classify.Unknown, res.Predictions["q2"].PredictedClass)
	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.UnknownCount)
}

func TestRegistry_RerunReplacesResults(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	exp := f.create(t, "baseline", 0.5)

	_, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.Embeddings().Put(ctx, "q0", []float32{0, 1}))
	done, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusCompleted, done.Status)

	res, err := f.registry.Results(ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, res.Predictions, 3, "results are replaced, not appended")
	assert.Equal(t, "y", res.Predictions["q0"].PredictedClass)
}

func TestRegistry_RunFailureDropsStaleResults(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	exp := f.create(t, "baseline", 0.5)

	_, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.Embeddings().Delete(ctx, []string{"q1"}))
	failed, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err, "run failures are recorded, not returned")
	assert.Equal(t, store.ExperimentStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
	assert.Empty(t, failed.ResultsRef)

	_, err = f.registry.Results(ctx, exp.ID)
	assert.True(t, sigilerr.IsInvalidState(err))
	_, err = f.store.Results().Get(ctx, exp.ID)
	assert.True(t, sigilerr.IsNotFound(err))

	// A failed experiment can be re-attempted.
	require.NoError(t, f.store.Embeddings().Put(ctx, "q1", []float32{0.1, 1}))
	again, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusCompleted, again.Status)
	assert.Empty(t, again.Error)
}

func TestRegistry_RunTimeoutMarksFailed(t *testing.T) {
	f := newFixture(t, newBlockingEngine(), 20*time.Millisecond)
	exp := f.create(t, "slow", 0.5)

	failed, err := f.registry.Run(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "timed out")

	got, err := f.registry.Get(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusFailed, got.Status, "final state is persisted")
}

func TestRegistry_RunTimeoutWithProviderIgnoringContext(t *testing.T) {
	f := newFixture(t, nil, 0)
	unblock := make(chan struct{})
	t.Cleanup(func() { close(unblock) })

	reg := experiment.NewRegistry(experiment.Config{
		Experiments: f.store.Experiments(),
		Results:     f.store.Results(),
		SupportSets: supportset.NewService(f.store.SupportSets()),
		QuerySets:   queryset.NewService(f.store.QuerySets()),
		Engine:      classify.NewEngine(2),
		Embeddings: embedding.ProviderFunc(func(_ context.Context, _ string) ([]float32, error) {
			<-unblock
			return []float32{1, 0}, nil
		}),
		RunTimeout: 50 * time.Millisecond,
	})
	exp, err := reg.Create(context.Background(), experiment.CreateRequest{
		Name: "stuck", SupportSetID: f.support.ID, QuerySetID: f.query.ID, Threshold: 0.5,
	})
	require.NoError(t, err)

	type result struct {
		exp *store.Experiment
		err error
	}
	done := make(chan result, 1)
	go func() {
		e, err := reg.Run(context.Background(), exp.ID)
		done <- result{e, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the run timeout")
	}
	require.NoError(t, r.err)
	assert.Equal(t, store.ExperimentStatusFailed, r.exp.Status)
	assert.Contains(t, r.exp.Error, "timed out")

	got, err := reg.Get(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusFailed, got.Status)

	// The run slot is released; the experiment can be deleted.
	require.NoError(t, reg.Delete(context.Background(), exp.ID))
}

// gatedResults blocks Delete of one experiment until released.
type gatedResults struct {
	store.ResultStore
	id      string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedResults) Delete(ctx context.Context, id string) error {
	if id == g.id {
		close(g.entered)
		<-g.release
	}
	return g.ResultStore.Delete(ctx, id)
}

func TestRegistry_DeleteDoesNotBlockOtherRuns(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	a := f.create(t, "a", 0.5)
	b := f.create(t, "b", 0.5)

	gate := &gatedResults{
		ResultStore: f.store.Results(),
		id:          a.ID,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	reg := experiment.NewRegistry(experiment.Config{
		Experiments: f.store.Experiments(),
		Results:     gate,
		SupportSets: supportset.NewService(f.store.SupportSets()),
		QuerySets:   queryset.NewService(f.store.QuerySets()),
		Engine:      classify.NewEngine(2),
		Embeddings:  embedding.NewStoreProvider(f.store.Embeddings()),
	})

	deleted := make(chan error, 1)
	go func() { deleted <- reg.Delete(ctx, a.ID) }()
	<-gate.entered

	_, err := reg.Run(ctx, a.ID)
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidState(err), "runs of an experiment being deleted are refused")

	done, err := reg.Run(ctx, b.ID)
	require.NoError(t, err, "other experiments run while a delete is in flight")
	assert.Equal(t, store.ExperimentStatusCompleted, done.Status)

	close(gate.release)
	require.NoError(t, <-deleted)
	_, err = reg.Get(ctx, a.ID)
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestRegistry_ConcurrentRunFailsFast(t *testing.T) {
	engine := newBlockingEngine()
	f := newFixture(t, engine, time.Minute)
	ctx := context.Background()
	exp := f.create(t, "busy", 0.5)

	type result struct {
		exp *store.Experiment
		err error
	}
	first := make(chan result, 1)
	go func() {
		e, err := f.registry.Run(ctx, exp.ID)
		first <- result{e, err}
	}()
	<-engine.started

	_, err := f.registry.Run(ctx, exp.ID)
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidState(err))

	err = f.registry.Delete(ctx, exp.ID)
	assert.True(t, sigilerr.IsInvalidState(err), "running experiments cannot be deleted")

	close(engine.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, store.ExperimentStatusCompleted, r.exp.Status)
}

func TestRegistry_RunUnknown(t *testing.T) {
	f := newFixture(t, nil, 0)
	_, err := f.registry.Run(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeExperimentNotFound))
}

func TestRegistry_Compare(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	e1 := f.create(t, "strict", 0.9)
	e2 := f.create(t, "loose", 0.1)

	_, err := f.registry.Run(ctx, e1.ID)
	require.NoError(t, err)

	_, err = f.registry.Compare(ctx, []string{e1.ID, e2.ID})
	require.Error(t, err)
	assert.True(t, sigilerr.IsInvalidState(err), "comparing an experiment that is not completed")

	_, err = f.registry.Run(ctx, e2.ID)
	require.NoError(t, err)

	cmp, err := f.registry.Compare(ctx, []string{e2.ID, e1.ID})
	require.NoError(t, err)
	require.Len(t, cmp, 2)
	assert.Equal(t, e2.ID, cmp[0].ExperimentID, "input order is kept")
	assert.Equal(t, e1.ID, cmp[1].ExperimentID)
	assert.Less(t, cmp[0].Summary.UnknownCount, cmp[1].Summary.UnknownCount)

	_, err = f.registry.Compare(ctx, nil)
	assert.True(t, sigilerr.IsInvalidInput(err))

	_, err = f.registry.Compare(ctx, []string{e1.ID, "missing"})
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestRegistry_DeleteKeepsSets(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	exp := f.create(t, "baseline", 0.5)
	_, err := f.registry.Run(ctx, exp.ID)
	require.NoError(t, err)

	require.NoError(t, f.registry.Delete(ctx, exp.ID))

	_, err = f.registry.Get(ctx, exp.ID)
	assert.True(t, sigilerr.IsNotFound(err))
	_, err = f.store.Results().Get(ctx, exp.ID)
	assert.True(t, sigilerr.IsNotFound(err))

	_, err = f.store.SupportSets().Get(ctx, f.support.ID)
	assert.NoError(t, err)
	_, err = f.store.QuerySets().Get(ctx, f.query.ID)
	assert.NoError(t, err)

	err = f.registry.Delete(ctx, exp.ID)
	assert.True(t, sigilerr.IsNotFound(err))
}

func TestRegistry_Lineage(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()

	root := f.create(t, "root", 0.5)
	child, err := f.registry.Create(ctx, experiment.CreateRequest{
		Name: "child", SupportSetID: f.support.ID, QuerySetID: f.query.ID, Threshold: 0.6, ParentExperimentID: root.ID,
	})
	require.NoError(t, err)
	grandchild, err := f.registry.Create(ctx, experiment.CreateRequest{
		Name: "grandchild", SupportSetID: f.support.ID, QuerySetID: f.query.ID, Threshold: 0.7, ParentExperimentID: child.ID,
	})
	require.NoError(t, err)

	chain, err := f.registry.Lineage(ctx, grandchild.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{grandchild.ID, child.ID, root.ID}, []string{chain[0].ID, chain[1].ID, chain[2].ID})

	require.NoError(t, f.registry.Delete(ctx, root.ID))
	chain, err = f.registry.Lineage(ctx, grandchild.ID)
	require.NoError(t, err)
	assert.Len(t, chain, 2, "resolution stops at a deleted ancestor")
}

func TestRegistry_Recover(t *testing.T) {
	f := newFixture(t, nil, 0)
	ctx := context.Background()
	exp := f.create(t, "crashed", 0.5)

	exp.Status = store.ExperimentStatusRunning
	require.NoError(t, f.store.Experiments().Update(ctx, exp))

	n, err := f.registry.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.registry.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExperimentStatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.Error)
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    store.ExperimentStatus
		to      store.ExperimentStatus
		allowed bool
	}{
		{"created to running", store.ExperimentStatusCreated, store.ExperimentStatusRunning, true},
		{"running to completed", store.ExperimentStatusRunning, store.ExperimentStatusCompleted, true},
		{"running to failed", store.ExperimentStatusRunning, store.ExperimentStatusFailed, true},
		{"failed to running", store.ExperimentStatusFailed, store.ExperimentStatusRunning, true},
		{"completed to running", store.ExperimentStatusCompleted, store.ExperimentStatusRunning, true},
		// Invalid transitions
		{"created to completed", store.ExperimentStatusCreated, store.ExperimentStatusCompleted, false},
		{"running to running", store.ExperimentStatusRunning, store.ExperimentStatusRunning, false},
		{"completed to failed", store.ExperimentStatusCompleted, store.ExperimentStatusFailed, false},
		{"failed to created", store.ExperimentStatusFailed, store.ExperimentStatusCreated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, experiment.ValidTransition(tt.from, tt.to))
		})
	}
}
