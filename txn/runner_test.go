// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package txn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/status"
	"github.com/docdbio/admin-go/writeop"
)

func mustPath(t *testing.T, canonical string) resourcepath.ResourcePath {
	t.Helper()
	p, err := resourcepath.New(canonical)
	require.NoError(t, err)
	return p
}

type fakeStream struct {
	results []rpc.BatchGetResult
	err     error
	i       int
}

func (s *fakeStream) Recv() (rpc.BatchGetResult, error) {
	if s.i < len(s.results) {
		r := s.results[s.i]
		s.i++
		return r, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return rpc.BatchGetResult{}, err
	}
	return rpc.BatchGetResult{}, rpc.ErrStreamDone
}

// fakeTxnClient scripts BeginTransaction tokens and per-attempt commit
// outcomes, recording every call for assertions.
type fakeTxnClient struct {
	commitCalls   int
	rollbackCalls int
	tokensIssued  [][]byte
	commitErrs    []error // consumed one per commit call; commits beyond the slice succeed
	readErrs      []error // consumed one per BatchGetDocuments call, by call index
	readCalls     int
	nextToken     int
}

func (f *fakeTxnClient) BatchGetDocuments(ctx context.Context, paths []resourcepath.ResourcePath, mask []resourcepath.FieldPath, tc rpc.TransactionContext) (rpc.BatchGetStream, error) {
	idx := f.readCalls
	f.readCalls++

	var token []byte
	if tc.NewTransaction {
		f.nextToken++
		token = []byte{byte(f.nextToken)}
		f.tokensIssued = append(f.tokensIssued, token)
	}

	var readErr error
	if idx < len(f.readErrs) {
		readErr = f.readErrs[idx]
	}
	if readErr != nil {
		// A scripted transient read failure: the stream drops before
		// handing back any document.
		return &fakeStream{err: readErr}, nil
	}

	results := make([]rpc.BatchGetResult, len(paths))
	for i, p := range paths {
		snap := rpc.DocumentSnapshot{Path: p, Exists: true, ReadTime: time.Now(), Fields: writeop.FieldValues{"n": 1}}
		results[i] = rpc.BatchGetResult{Snapshot: snap}
		if i == 0 && tc.NewTransaction {
			results[i].TransactionToken = token
		}
	}
	return &fakeStream{results: results}, nil
}

func (f *fakeTxnClient) BeginTransaction(ctx context.Context, readOnly bool, readTime time.Time) ([]byte, error) {
	panic("not used: transactions begin lazily via the first read")
}

func (f *fakeTxnClient) Commit(ctx context.Context, token []byte, writes []writeop.Op) (time.Time, []rpc.WriteResult, error) {
	idx := f.commitCalls
	f.commitCalls++
	if idx < len(f.commitErrs) && f.commitErrs[idx] != nil {
		return time.Time{}, nil, f.commitErrs[idx]
	}
	results := make([]rpc.WriteResult, len(writes))
	now := time.Now()
	for i := range writes {
		results[i] = rpc.WriteResult{CommitTime: now}
	}
	return now, results, nil
}

func (f *fakeTxnClient) Rollback(ctx context.Context, token []byte) error {
	f.rollbackCalls++
	return nil
}

func (f *fakeTxnClient) BatchWrite(ctx context.Context, writes []writeop.Op) ([]rpc.BatchWriteResult, error) {
	panic("not used by these tests")
}

var _ rpc.Client = (*fakeTxnClient)(nil)

// scenario D: the first commit aborts, the second succeeds; fn runs
// twice and observes a fresh token on the second attempt.
func TestTransactionContentionRetriesToSuccess(t *testing.T) {
	client := &fakeTxnClient{
		commitErrs: []error{status.New(status.Aborted, "contention")},
	}

	doc := mustPath(t, "projects/p/databases/d/documents/coll/1")
	var tokensSeen [][]byte
	var invocations int

	start := time.Now()
	result, err := Run(context.Background(), client, Options{}, func(ctx context.Context, tx *Transaction) error {
		invocations++
		_, rerr := tx.Get(ctx, doc)
		if rerr != nil {
			return rerr
		}
		tokensSeen = append(tokensSeen, append([]byte(nil), tx.token...))
		return tx.Set(resourcepath.MustOf(doc), writeop.FieldValues{"n": 2}, writeop.NoPrecondition)
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 2, invocations)
	assert.False(t, result.CommitTime.IsZero())
	require.Len(t, tokensSeen, 2)
	assert.NotEqual(t, tokensSeen[0], tokensSeen[1], "second attempt must observe a fresh token")
	assert.Equal(t, 1, client.rollbackCalls)
	// initialDelay is 500ms with +/-20% jitter, so 400ms is the true floor.
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond, "runner must sleep the backoff delay before retrying")
}

// A transient read failure inside a transaction retries the whole
// attempt from scratch (spec §4.6 step 2, §4.7: partial-progress retry
// is disabled inside transactions), not just the unreceived documents.
func TestTransientReadFailureRetriesWholeAttempt(t *testing.T) {
	client := &fakeTxnClient{
		readErrs: []error{status.New(status.Unavailable, "stream dropped")},
	}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/7")

	var invocations int
	result, err := Run(context.Background(), client, Options{}, func(ctx context.Context, tx *Transaction) error {
		invocations++
		_, rerr := tx.Get(ctx, doc)
		if rerr != nil {
			return rerr
		}
		return tx.Set(resourcepath.MustOf(doc), writeop.FieldValues{"n": 2}, writeop.NoPrecondition)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, invocations, "fn must be retried from scratch after the transient read failure")
	assert.False(t, result.CommitTime.IsZero())
	assert.Equal(t, 1, client.commitCalls)
	assert.Equal(t, 1, client.rollbackCalls, "a failed read attempt still rolls back best-effort")
}

// A non-transient error fn returns while reading (the caller's own
// application error, not a transport failure) is not retried.
func TestApplicationErrorFromReadIsNotRetried(t *testing.T) {
	client := &fakeTxnClient{}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/8")

	var invocations int
	appErr := status.New(status.NotFound, "no such document")
	_, err := Run(context.Background(), client, Options{}, func(ctx context.Context, tx *Transaction) error {
		invocations++
		if _, rerr := tx.Get(ctx, doc); rerr != nil {
			return rerr
		}
		return appErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, invocations)
	assert.Equal(t, 0, client.rollbackCalls)
	se, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, status.NotFound, se.Code)
}

// A transaction exceeding maxAttempts surfaces the last server error
// (spec §8 property 12).
func TestTransactionExhaustsAttemptsSurfacesLastError(t *testing.T) {
	client := &fakeTxnClient{
		commitErrs: []error{
			status.New(status.Aborted, "1"),
			status.New(status.Aborted, "2"),
			status.New(status.Aborted, "3"),
		},
	}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/2")

	_, err := Run(context.Background(), client, Options{MaxAttempts: 3}, func(ctx context.Context, tx *Transaction) error {
		return tx.Set(resourcepath.MustOf(doc), writeop.FieldValues{"n": 1}, writeop.NoPrecondition)
	})

	require.Error(t, err)
	se, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, status.Aborted, se.Code)
	assert.Equal(t, 3, client.commitCalls)
}

// Read-only transactions are forced to maxAttempts=1 and never call
// Commit or Rollback (spec §4.6 step 6).
func TestReadOnlyTransactionHasNoCommitAndFailsFast(t *testing.T) {
	client := &fakeTxnClient{}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/3")

	_, err := Run(context.Background(), client, Options{ReadOnly: true, MaxAttempts: 5}, func(ctx context.Context, tx *Transaction) error {
		_, rerr := tx.Get(ctx, doc)
		return rerr
	})

	require.NoError(t, err)
	assert.Equal(t, 0, client.commitCalls)
	assert.Equal(t, 0, client.rollbackCalls)
}

// A write attempt inside a read-only transaction is rejected with
// invalid-argument (spec §8 property 11).
func TestWriteInReadOnlyTransactionIsRejected(t *testing.T) {
	client := &fakeTxnClient{}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/4")

	_, err := Run(context.Background(), client, Options{ReadOnly: true}, func(ctx context.Context, tx *Transaction) error {
		return tx.Set(resourcepath.MustOf(doc), writeop.FieldValues{"n": 1}, writeop.NoPrecondition)
	})

	require.Error(t, err)
	se, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, status.InvalidArgument, se.Code)
}

// A read issued after a write within the same attempt is rejected
// with invalid-argument (spec §4.6 invariant).
func TestReadAfterWriteIsRejected(t *testing.T) {
	client := &fakeTxnClient{}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/5")

	_, err := Run(context.Background(), client, Options{}, func(ctx context.Context, tx *Transaction) error {
		if werr := tx.Set(resourcepath.MustOf(doc), writeop.FieldValues{"n": 1}, writeop.NoPrecondition); werr != nil {
			return werr
		}
		_, rerr := tx.Get(ctx, doc)
		return rerr
	})

	require.Error(t, err)
	se, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, status.InvalidArgument, se.Code)
}

// A read-write attempt with no buffered writes commits nothing and
// succeeds trivially.
func TestNoWritesSkipsCommit(t *testing.T) {
	client := &fakeTxnClient{}
	doc := mustPath(t, "projects/p/databases/d/documents/coll/6")

	result, err := Run(context.Background(), client, Options{}, func(ctx context.Context, tx *Transaction) error {
		_, rerr := tx.Get(ctx, doc)
		return rerr
	})

	require.NoError(t, err)
	assert.True(t, result.CommitTime.IsZero())
	assert.Equal(t, 0, client.commitCalls)
}
