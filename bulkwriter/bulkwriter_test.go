// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package bulkwriter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/status"
	"github.com/docdbio/admin-go/writeop"
)

// fakeClient is a scriptable rpc.Client test double for BatchWrite,
// mirroring the teacher's test.NewTestService(t, ...): it records every
// call and lets the test queue per-call responses or errors.
type fakeClient struct {
	mu       sync.Mutex
	calls    [][]writeop.Op
	handlers []func(ops []writeop.Op) ([]rpc.BatchWriteResult, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{}
}

// enqueue registers the next handler to be consumed by the next
// BatchWrite call. If no handler remains, every op in the batch
// succeeds with a WriteResult whose CommitTime is the current time.
func (f *fakeClient) enqueue(h func(ops []writeop.Op) ([]rpc.BatchWriteResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) BatchWrite(ctx context.Context, writes []writeop.Op) ([]rpc.BatchWriteResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, writes)
	var h func([]writeop.Op) ([]rpc.BatchWriteResult, error)
	if len(f.handlers) > 0 {
		h = f.handlers[0]
		f.handlers = f.handlers[1:]
	}
	f.mu.Unlock()

	if h != nil {
		return h(writes)
	}
	results := make([]rpc.BatchWriteResult, len(writes))
	for i := range writes {
		results[i] = rpc.BatchWriteResult{Result: rpc.WriteResult{CommitTime: time.Now()}}
	}
	return results, nil
}

func (f *fakeClient) BatchGetDocuments(ctx context.Context, paths []resourcepath.ResourcePath, mask []resourcepath.FieldPath, tc rpc.TransactionContext) (rpc.BatchGetStream, error) {
	panic("not used by these tests")
}

func (f *fakeClient) BeginTransaction(ctx context.Context, readOnly bool, readTime time.Time) ([]byte, error) {
	panic("not used by these tests")
}

func (f *fakeClient) Commit(ctx context.Context, token []byte, writes []writeop.Op) (time.Time, []rpc.WriteResult, error) {
	panic("not used by these tests")
}

func (f *fakeClient) Rollback(ctx context.Context, token []byte) error {
	panic("not used by these tests")
}

var _ rpc.Client = (*fakeClient)(nil)

func testDoc(id string) resourcepath.DocumentID {
	return resourcepath.DocumentID("projects/p/databases/d/documents/coll/" + id)
}

func testOptions() Options {
	return DefaultOptions().
		SetThrottlingMode(ThrottlingDisabled).
		SetOperationDeadline(5 * time.Second)
}

// scenario A: writes to distinct documents batch together; writes to
// the same document are never in flight concurrently.
func TestBatchingAndPerDocumentOrdering(t *testing.T) {
	client := newFakeClient()
	var mu sync.Mutex
	var order []string
	client.enqueue(func(ops []writeop.Op) ([]rpc.BatchWriteResult, error) {
		mu.Lock()
		for _, op := range ops {
			order = append(order, string(op.Target()))
		}
		mu.Unlock()
		results := make([]rpc.BatchWriteResult, len(ops))
		for i := range ops {
			results[i] = rpc.BatchWriteResult{Result: rpc.WriteResult{CommitTime: time.Now()}}
		}
		return results, nil
	})

	w := New(client, testOptions())

	doc := testDoc("same")
	f1, err := w.Set(doc, writeop.FieldValues{"a": 1}, writeop.NoPrecondition)
	require.NoError(t, err)
	f2, err := w.Set(doc, writeop.FieldValues{"a": 2}, writeop.NoPrecondition)
	require.NoError(t, err)
	fOther, err := w.Set(testDoc("other"), writeop.FieldValues{"a": 1}, writeop.NoPrecondition)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = f1.Wait(ctx)
	require.NoError(t, err)
	_, err = f2.Wait(ctx)
	require.NoError(t, err)
	_, err = fOther.Wait(ctx)
	require.NoError(t, err)

	w.Close()

	mu.Lock()
	defer mu.Unlock()
	// The two writes to doc must never have shared a batch (the second
	// one was admitted to the pending queue but skipped by
	// PendingQueue.Take while the first was in flight), so they appear
	// in at least two separate dispatches, in enqueue order.
	var docPositions []int
	for i, target := range order {
		if target == string(doc) {
			docPositions = append(docPositions, i)
		}
	}
	require.Len(t, docPositions, 2)
	assert.Less(t, docPositions[0], docPositions[1])
}

// Regression: a write that needs a retry must keep its document's
// in-flight slot locked through the whole retry chain (spec §4.5: "A
// second write to the same document is held in pendingQueue until the
// prior batch resolves"). A second, independently enqueued write to
// the same document must not dispatch — let alone commit — while the
// first is still waiting out its backoff delay in the retry heap.
func TestRetryKeepsDocumentLockedAcrossAttempts(t *testing.T) {
	client := newFakeClient()
	client.enqueue(func(ops []writeop.Op) ([]rpc.BatchWriteResult, error) {
		return nil, status.New(status.Unavailable, "server unavailable")
	})

	w := New(client, testOptions())

	doc := testDoc("retry-locked")
	f1, err := w.Set(doc, writeop.FieldValues{"seq": 1}, writeop.NoPrecondition)
	require.NoError(t, err)
	f2, err := w.Set(doc, writeop.FieldValues{"seq": 2}, writeop.NoPrecondition)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = f1.Wait(ctx)
	require.NoError(t, err)
	_, err = f2.Wait(ctx)
	require.NoError(t, err)

	w.Close()

	client.mu.Lock()
	defer client.mu.Unlock()
	lastSeq1 := -1
	firstSeq2 := -1
	for i, call := range client.calls {
		for _, op := range call {
			if op.Target() != doc {
				continue
			}
			switch op.Values()["seq"].(int) {
			case 1:
				lastSeq1 = i
			case 2:
				if firstSeq2 == -1 {
					firstSeq2 = i
				}
			}
		}
	}
	require.NotEqual(t, -1, lastSeq1, "expected at least one dispatch of the first write")
	require.NotEqual(t, -1, firstSeq2, "expected a dispatch of the second write")
	assert.Less(t, lastSeq1, firstSeq2, "second write must not dispatch before the first write's retry chain resolves")
}

// scenario B: the server rejects the first commit attempt as
// unavailable, then succeeds. The write resolves successfully and
// onError is never invoked.
func TestTransientFailureRetriesToSuccess(t *testing.T) {
	client := newFakeClient()
	client.enqueue(func(ops []writeop.Op) ([]rpc.BatchWriteResult, error) {
		return nil, status.New(status.Unavailable, "server unavailable")
	})

	w := New(client, testOptions())
	var errCalls int32
	w.SetErrorCallback(func(op writeop.Op, err *WriteError) {
		atomic.AddInt32(&errCalls, 1)
	})

	future, err := w.Create(testDoc("retry-me"), writeop.FieldValues{"a": 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	result, err := future.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, result.CommitTime.IsZero())

	w.Close()
	assert.Equal(t, int32(0), atomic.LoadInt32(&errCalls))
	assert.GreaterOrEqual(t, client.callCount(), 2)
}

// scenario C: the server reports permission-denied, a fatal code.
// onError fires once with failedAttempts=1 and the future rejects.
func TestFatalFailureRejectsImmediately(t *testing.T) {
	client := newFakeClient()
	client.enqueue(func(ops []writeop.Op) ([]rpc.BatchWriteResult, error) {
		return nil, status.New(status.PermissionDenied, "not allowed")
	})

	w := New(client, testOptions())

	var gotErr *WriteError
	var errCalls int32
	w.SetErrorCallback(func(op writeop.Op, err *WriteError) {
		atomic.AddInt32(&errCalls, 1)
		gotErr = err
	})

	future, err := w.Set(testDoc("forbidden"), writeop.FieldValues{"a": 1}, writeop.NoPrecondition)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	require.Error(t, err)

	w.Close()

	require.Equal(t, int32(1), atomic.LoadInt32(&errCalls))
	require.NotNil(t, gotErr)
	assert.Equal(t, 1, gotErr.FailedAttempts)
	assert.Equal(t, status.PermissionDenied, gotErr.Code)
	assert.Equal(t, 1, client.callCount())
}

// A BulkWriter with no pending work closes immediately.
func TestCloseOnEmptyQueueCompletesImmediately(t *testing.T) {
	client := newFakeClient()
	w := New(client, testOptions())

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return for an empty writer")
	}
}

// A write enqueued after Close is rejected with invalid-argument.
func TestWriteAfterCloseIsRejected(t *testing.T) {
	client := newFakeClient()
	w := New(client, testOptions())
	w.Close()

	_, err := w.Set(testDoc("too-late"), writeop.FieldValues{"a": 1}, writeop.NoPrecondition)
	require.Error(t, err)
	se, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, status.InvalidArgument, se.Code)
}

// A custom retry predicate can force a stop before the default policy
// would otherwise retry an Unavailable failure.
func TestRetryPredicateCanForceStop(t *testing.T) {
	client := newFakeClient()
	client.enqueue(func(ops []writeop.Op) ([]rpc.BatchWriteResult, error) {
		return nil, status.New(status.Unavailable, "down")
	})

	opts := testOptions().SetRetryPredicate(func(code status.Code, failedAttempts int, err error) RetryDecision {
		return RetryDecisionStop
	})
	w := New(client, opts)

	future, err := w.Delete(testDoc("give-up"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	require.Error(t, err)

	w.Close()
	assert.Equal(t, 1, client.callCount())
}
