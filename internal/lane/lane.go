// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package lane serialises work per key. Work for the same key runs one item
// at a time in arrival order; work for different keys runs concurrently.
package lane

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sigil-dev/fewshot/pkg/errors"
)

// lane is the exclusive slot for one key. refs counts callers holding or
// waiting for the slot so idle lanes can be dropped from the pool.
type lane struct {
	slot chan struct{}
	refs int
}

// Pool manages a set of lanes keyed by an arbitrary string (asset id,
// lineage id, experiment id). It is safe for concurrent use.
type Pool struct {
	name string

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
}

// NewPool returns an empty Pool. name appears in log records.
func NewPool(name string) *Pool {
	return &Pool{
		name:  name,
		lanes: make(map[string]*lane),
	}
}

// Do runs fn while holding the lane for key and returns its error. If ctx is
// cancelled before the lane becomes free, ctx.Err() is returned without
// executing fn. A panic in fn is recovered and returned as an error.
func (p *Pool) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	// Fast path: bail immediately if context is already done.
	if err := ctx.Err(); err != nil {
		return err
	}

	l, err := p.acquire(key)
	if err != nil {
		return err
	}
	defer p.release(key, l)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.slot <- struct{}{}:
	}
	defer func() { <-l.slot }()

	return p.execute(ctx, key, fn)
}

// execute runs fn with panic recovery.
func (p *Pool) execute(ctx context.Context, key string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("lane worker panic recovered",
				"pool", p.name,
				"key", key,
				"panic", r,
				"stack", string(debug.Stack()))
			err = errors.Errorf(errors.CodeLanePanic, "worker panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (p *Pool) acquire(key string) (*lane, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New(errors.CodeLaneClosed, "lane pool is closed", errors.Field("pool", p.name))
	}

	l, ok := p.lanes[key]
	if !ok {
		l = &lane{slot: make(chan struct{}, 1)}
		p.lanes[key] = l
	}
	l.refs++
	return l, nil
}

func (p *Pool) release(key string, l *lane) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(p.lanes, key)
	}
}

// Len reports the number of keys with work running or waiting.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close stops the pool from accepting new work. Work already holding or
// waiting for a lane is unaffected. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
