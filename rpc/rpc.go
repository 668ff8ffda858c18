// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package rpc defines the semantic (not wire-specific) RPC surface
// this module's core depends on (spec §6): batch-get, begin/commit/
// rollback transaction, and non-transactional batch-write. It is the
// "external collaborator" boundary — credential resolution, transport,
// and wire encoding are all outside this module's scope (spec §1) and
// are supplied by whatever concrete Client a caller injects, the same
// way the teacher's api/write.go and internal/write/service.go are
// built against an injected http2.Service rather than owning HTTP
// themselves.
package rpc

import (
	"context"
	"io"
	"time"

	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/status"
	"github.com/docdbio/admin-go/writeop"
)

// DocumentSnapshot is a single document read result. A missing
// document (spec §4.7) has Exists=false, a ReadTime, and no Fields.
type DocumentSnapshot struct {
	Path     resourcepath.ResourcePath
	Exists   bool
	ReadTime time.Time
	Fields   writeop.FieldValues
}

// TransactionContext selects, for a BatchGetDocuments call, exactly
// one of: an existing transaction token, a request for a new
// transaction (the lazy "begin" of spec §4.6), or a read-only
// snapshot read time. The zero value means "no transaction context".
type TransactionContext struct {
	Token          []byte
	NewTransaction bool
	ReadOnly       bool
	ReadTime       time.Time
}

// IsZero reports whether tc selects no transaction context at all.
func (tc TransactionContext) IsZero() bool {
	return len(tc.Token) == 0 && !tc.NewTransaction && tc.ReadTime.IsZero()
}

// BatchGetResult is one element of a BatchGetDocuments stream.
type BatchGetResult struct {
	Snapshot DocumentSnapshot
	// TransactionToken is set on the first result of a stream that was
	// opened with NewTransaction=true (spec §4.6 step 1).
	TransactionToken []byte
}

// BatchGetStream is a server stream of BatchGetResult, consumed until
// Recv returns io.EOF. Results may arrive out of order relative to the
// request's DocumentReference order (spec §4.7); the docreader package
// reassembles them.
type BatchGetStream interface {
	Recv() (BatchGetResult, error)
}

// WriteResult is the server's per-write outcome on a successful
// commit/batch-write (spec §3): a single commit timestamp.
type WriteResult struct {
	CommitTime time.Time
}

// BatchWriteResult pairs a WriteResult with a possible per-operation
// error, for the non-transactional BatchWrite RPC (spec §6) where
// some operations in a batch may fail while others succeed.
type BatchWriteResult struct {
	Result WriteResult
	Err    *status.Error
}

// Client is the RPC surface the core (BulkWriter, transaction runner,
// document reader) depends on. A concrete implementation wraps
// whatever transport (gRPC, HTTP, an in-memory fake for tests) the
// caller has available; this module never constructs one itself.
type Client interface {
	// BatchGetDocuments opens a streaming read of paths. tc selects at
	// most one of an existing token, a new-transaction request, or a
	// read time; the zero TransactionContext means a non-transactional
	// read.
	BatchGetDocuments(ctx context.Context, paths []resourcepath.ResourcePath, mask []resourcepath.FieldPath, tc TransactionContext) (BatchGetStream, error)

	// BeginTransaction explicitly opens a transaction. In practice
	// (spec §4.6) most callers never call this directly: the first
	// read of an attempt carries NewTransaction=true and the token
	// comes back on that read's stream instead.
	BeginTransaction(ctx context.Context, readOnly bool, readTime time.Time) ([]byte, error)

	// Commit atomically applies writes under token (nil for a
	// non-transactional commit) and returns a commit time plus one
	// WriteResult per write, in write order.
	Commit(ctx context.Context, token []byte, writes []writeop.Op) (time.Time, []WriteResult, error)

	// Rollback abandons the transaction named by token. Errors are
	// expected to be ignored by callers (spec §4.6 step 5:
	// "best-effort").
	Rollback(ctx context.Context, token []byte) error

	// BatchWrite performs a non-transactional bulk write: every
	// operation is attempted independently and reported with its own
	// result/error, in write order.
	BatchWrite(ctx context.Context, writes []writeop.Op) ([]BatchWriteResult, error)
}

// ErrStreamDone is an alias of io.EOF for callers that prefer not to
// import io directly when draining a BatchGetStream.
var ErrStreamDone = io.EOF
