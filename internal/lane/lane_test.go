// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package lane_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/fewshot/internal/lane"
	sigilerr "github.com/sigil-dev/fewshot/pkg/errors"
)

func TestPool_SerializesSameKey(t *testing.T) {
	pool := lane.NewPool("test")
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), "asset-1", func(_ context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load(), "same-key work must never overlap")
	assert.Equal(t, 0, pool.Len(), "idle lanes are dropped")
}

func TestPool_DifferentKeysRunConcurrently(t *testing.T) {
	pool := lane.NewPool("test")
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), key, func(_ context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Greater(t, peak.Load(), int32(1), "different keys should run in parallel")
}

func TestPool_ContextCancelledWhileWaiting(t *testing.T) {
	pool := lane.NewPool("test")
	defer pool.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), "k", func(_ context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	executed := false
	err := pool.Do(ctx, "k", func(_ context.Context) error {
		executed = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, executed)

	close(release)
}

func TestPool_RecoversPanic(t *testing.T) {
	pool := lane.NewPool("test")
	defer pool.Close()

	err := pool.Do(context.Background(), "k", func(_ context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, sigilerr.CodeLanePanic, sigilerr.CodeOf(err))

	// The lane is usable after a panic.
	err = pool.Do(context.Background(), "k", func(_ context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestPool_Closed(t *testing.T) {
	pool := lane.NewPool("test")
	pool.Close()
	pool.Close()

	err := pool.Do(context.Background(), "k", func(_ context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeLaneClosed))
}
