// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool bounds CPU-heavy work (digesting and segmenting large
// uploads) to a fixed number of concurrent workers. Work submitted with
// [Pool.Do] runs on a pool goroutine rather than the caller's, so a slow
// hash of a multi-gigabyte layer does not hold more than its share of
// CPU, and a caller whose context is cancelled stops waiting at once.
package workpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool admits at most a fixed number of concurrent tasks.
type Pool struct {
	workers   int
	semaphore *semaphore.Weighted
}

// New returns a pool with the given number of workers. Values below 1
// mean 1.
func New(workers int) *Pool {
	workers = max(workers, 1)
	return &Pool{
		workers:   workers,
		semaphore: semaphore.NewWeighted(int64(workers)),
	}
}

// Workers returns the pool's concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Do waits for a free worker, runs task on it, and returns the task's
// error. If ctx is cancelled first, Do returns ctx.Err(); a task that has
// already started keeps its worker until it returns, and its result is
// discarded.
func (p *Pool) Do(ctx context.Context, task func() error) error {
	if err := p.semaphore.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.semaphore.Release(1)
		done <- task()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is [Pool.Do] for tasks that produce a value.
func Run[T any](ctx context.Context, pool *Pool, task func() (T, error)) (T, error) {
	var result T
	err := pool.Do(ctx, func() error {
		var taskErr error
		result, taskErr = task()
		return taskErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
