// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package bulkwriter

import (
	"context"

	iwrite "github.com/docdbio/admin-go/internal/write"
	"github.com/docdbio/admin-go/rpc"
)

// Future is the per-write completion handle returned by Create, Set,
// Update and Delete (spec §9). Exactly one of success or failure ever
// occurs; Wait blocks until one does.
type Future struct {
	inner *iwrite.Future
}

// Wait blocks until the write resolves or ctx is cancelled, returning
// the server's WriteResult on success or the terminal error
// (typically a *WriteError) on failure.
func (f *Future) Wait(ctx context.Context) (rpc.WriteResult, error) {
	return f.inner.Wait(ctx)
}

// Done returns a channel closed once the write resolves.
func (f *Future) Done() <-chan struct{} {
	return f.inner.Done()
}
