// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/swarmreg/lib/torrent"
)

// SeedRequest is one committed artifact offered to the swarm.
type SeedRequest struct {
	// Content is the artifact's bytes. Seeders must not modify it.
	Content []byte

	// Descriptor was built over Content.
	Descriptor *torrent.Descriptor
}

// Seeder distributes committed artifacts to peers. Seed may return
// before distribution completes. An error never affects the write that
// produced the request.
type Seeder interface {
	Seed(ctx context.Context, request SeedRequest) error
}

// NopSeeder discards every request.
type NopSeeder struct{}

// Seed does nothing.
func (NopSeeder) Seed(context.Context, SeedRequest) error { return nil }

// ErrQueueFull is returned by [SeedQueue.Seed] when the queue has no
// room. The request is dropped.
var ErrQueueFull = errors.New("seed queue full")

// ErrQueueClosed is returned by [SeedQueue.Seed] after [SeedQueue.Close].
var ErrQueueClosed = errors.New("seed queue closed")

// SeedQueue makes a Seeder asynchronous. Seed enqueues without blocking
// and a single worker started by [SeedQueue.Run] feeds requests to the
// wrapped Seeder in order.
type SeedQueue struct {
	seeder   Seeder
	logger   *slog.Logger
	requests chan SeedRequest

	closeOnce sync.Once
	closed    chan struct{}
	mu        sync.RWMutex
}

// NewSeedQueue wraps seeder with a queue of the given capacity (at
// least 1).
func NewSeedQueue(seeder Seeder, capacity int, logger *slog.Logger) *SeedQueue {
	return &SeedQueue{
		seeder:   seeder,
		logger:   logger,
		requests: make(chan SeedRequest, max(capacity, 1)),
		closed:   make(chan struct{}),
	}
}

// Seed enqueues request. It returns [ErrQueueFull] instead of waiting
// when the worker is behind.
func (q *SeedQueue) Seed(_ context.Context, request SeedRequest) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.requests <- request:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run feeds queued requests to the wrapped Seeder until the queue is
// closed and drained. Cancelling ctx does not stop it: requests are
// seeded with ctx's values but without its cancellation, so a shutdown
// that cancels ctx before calling [SeedQueue.Close] still delivers
// every queued request. Seeder errors are logged.
func (q *SeedQueue) Run(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for request := range q.requests {
		if err := q.seeder.Seed(ctx, request); err != nil {
			q.logger.Warn("seeding failed",
				"info_hash", request.Descriptor.InfoHash,
				"name", request.Descriptor.Info.Name,
				"error", err,
			)
			continue
		}
		q.logger.Debug("artifact seeded",
			"info_hash", request.Descriptor.InfoHash,
			"name", request.Descriptor.Info.Name,
		)
	}
}

// Close stops accepting requests. Run returns once the requests already
// queued have been handed to the Seeder.
func (q *SeedQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.closed)
		close(q.requests)
		q.mu.Unlock()
	})
}

// Pending returns the number of queued requests.
func (q *SeedQueue) Pending() int {
	return len(q.requests)
}
