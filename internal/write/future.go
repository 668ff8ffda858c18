// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package write holds the BulkWriter's internal pending-work
// primitives: per-write futures and the retry-ready heap. It plays
// the same supporting role the teacher's internal/write package
// (Batch, Queue) plays for api/write.go, generalized from line-
// protocol batches to heterogeneous writeop.Op values and from a FIFO
// retry queue to a time-keyed retry heap (spec §4.5 requires retries
// become ready at a specific instant, not simply "next").
package write

import (
	"context"
	"sync"

	"github.com/docdbio/admin-go/rpc"
)

// Future is the per-write completion handle spec §9 describes
// ("Per-write futures joined with a close-all barrier"): only the
// first ResolveSuccess/ResolveError call takes effect, and Wait blocks
// until that happens or ctx is done.
type Future struct {
	done   chan struct{}
	once   sync.Once
	result rpc.WriteResult
	err    error
}

// NewFuture allocates an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// ResolveSuccess resolves the future with a successful result. Only
// the first call (success or error) takes effect.
func (f *Future) ResolveSuccess(r rpc.WriteResult) {
	f.once.Do(func() {
		f.result = r
		close(f.done)
	})
}

// ResolveError resolves the future with a terminal error. Only the
// first call (success or error) takes effect.
func (f *Future) ResolveError(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (rpc.WriteResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return rpc.WriteResult{}, ctx.Err()
	}
}

// TryResult returns the resolved value and true if the future has
// already resolved, without blocking.
func (f *Future) TryResult() (rpc.WriteResult, error, bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		return rpc.WriteResult{}, nil, false
	}
}
