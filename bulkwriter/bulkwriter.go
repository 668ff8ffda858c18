// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package bulkwriter implements the parallel write pipeline of spec
// §4.5: it batches heterogeneous writeop.Op values, enforces
// per-document ordering via an in-flight set, throttles dispatch
// through an adaptive rate limiter, and retries transient failures
// with backoff while honoring a user-supplied retry predicate.
//
// Its scheduling loop is the direct descendant of the teacher's
// api/write.go bufferProc/writeProc pair: one goroutine owns all
// mutable state and communicates with callers exclusively over
// channels, so (per spec §5) the core itself needs no locks.
package bulkwriter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/docdbio/admin-go/backoff"
	iwrite "github.com/docdbio/admin-go/internal/write"
	"github.com/docdbio/admin-go/internal/wlog"
	"github.com/docdbio/admin-go/ratelimiter"
	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/status"
	"github.com/docdbio/admin-go/writeop"
)

// SuccessCallback is invoked, synchronously on the BulkWriter's loop,
// for every write that commits successfully.
type SuccessCallback func(op writeop.Op, result rpc.WriteResult)

// ErrorCallback is invoked, synchronously on the BulkWriter's loop,
// for every write that exhausts its retry policy.
type ErrorCallback func(op writeop.Op, err *WriteError)

// BulkWriter is the parallel write pipeline of spec §4.5.
type BulkWriter struct {
	client rpc.Client
	opts   Options

	enqueueCh chan *enqueueRequest
	closeCh   chan chan struct{}
	resultsCh chan dispatchResult

	onSuccess atomic.Value // SuccessCallback
	onError   atomic.Value // ErrorCallback

	loopDone chan struct{}
}

type enqueueRequest struct {
	op     writeop.Op
	future *iwrite.Future
	accept chan bool
}

type dispatchResult struct {
	items   []*iwrite.Item
	results []rpc.BatchWriteResult
	// err is set for a whole-batch/transport failure; every item in
	// the batch is then treated as having failed with the same
	// status, per spec §4.5 "Failure semantics".
	err error
}

// New constructs a BulkWriter against client, applying opts (use
// DefaultOptions() as a base) and starting its scheduling loop.
func New(client rpc.Client, opts Options) *BulkWriter {
	limiterOpts := ratelimiter.Options{
		Disabled:         opts.ThrottlingMode == ThrottlingDisabled,
		InitialOpsPerSec: opts.InitialOpsPerSec,
		MaxOpsPerSec:     opts.MaxOpsPerSec,
		RampUpInterval:   opts.RampUpInterval,
	}
	w := &BulkWriter{
		client:    client,
		opts:      opts,
		enqueueCh: make(chan *enqueueRequest),
		closeCh:   make(chan chan struct{}),
		resultsCh: make(chan dispatchResult),
		loopDone:  make(chan struct{}),
	}
	go w.run(ratelimiter.New(limiterOpts))
	return w
}

// SetSuccessCallback installs the callback invoked for each successful
// write, replacing any previous one.
func (w *BulkWriter) SetSuccessCallback(cb SuccessCallback) { w.onSuccess.Store(cb) }

// SetErrorCallback installs the callback invoked for each write that
// exhausts retries, replacing any previous one.
func (w *BulkWriter) SetErrorCallback(cb ErrorCallback) { w.onError.Store(cb) }

func (w *BulkWriter) successCallback() SuccessCallback {
	cb, _ := w.onSuccess.Load().(SuccessCallback)
	return cb
}

func (w *BulkWriter) errorCallback() ErrorCallback {
	cb, _ := w.onError.Load().(ErrorCallback)
	return cb
}

// Create enqueues a Create operation. See writeop.Create for
// validation rules.
func (w *BulkWriter) Create(target resourcepath.DocumentID, values writeop.FieldValues) (*Future, error) {
	op, err := writeop.Create(target, values)
	if err != nil {
		return nil, err
	}
	return w.enqueue(op)
}

// Set enqueues a Set operation.
func (w *BulkWriter) Set(target resourcepath.DocumentID, values writeop.FieldValues, precondition writeop.Precondition, opts ...writeop.SetOption) (*Future, error) {
	op, err := writeop.Set(target, values, precondition, opts...)
	if err != nil {
		return nil, err
	}
	return w.enqueue(op)
}

// Update enqueues an Update operation.
func (w *BulkWriter) Update(target resourcepath.DocumentID, updates writeop.FieldValues, precondition ...writeop.Precondition) (*Future, error) {
	op, err := writeop.Update(target, updates, precondition...)
	if err != nil {
		return nil, err
	}
	return w.enqueue(op)
}

// Delete enqueues a Delete operation.
func (w *BulkWriter) Delete(target resourcepath.DocumentID, precondition ...writeop.Precondition) (*Future, error) {
	op, err := writeop.Delete(target, precondition...)
	if err != nil {
		return nil, err
	}
	return w.enqueue(op)
}

func (w *BulkWriter) enqueue(op writeop.Op) (*Future, error) {
	future := iwrite.NewFuture()
	req := &enqueueRequest{op: op, future: future, accept: make(chan bool, 1)}
	select {
	case w.enqueueCh <- req:
	case <-w.loopDone:
		return nil, ErrClosed
	}
	if !<-req.accept {
		return nil, ErrClosed
	}
	return &Future{inner: future}, nil
}

// Close stops admitting new writes and blocks until every pending and
// in-flight write has resolved one way or the other (spec §4.5:
// "after close() returns, pendingQueue and retryHeap are empty").
// Close itself never returns an error: failures are only observable
// through each write's Future or the ErrorCallback (spec §7).
func (w *BulkWriter) Close() {
	reply := make(chan struct{})
	select {
	case w.closeCh <- reply:
		<-reply
	case <-w.loopDone:
	}
}

// run is the single goroutine that owns all BulkWriter state, the
// generalization of the teacher's writeProc to heterogeneous ops,
// concurrent batches, and a time-keyed retry heap.
func (w *BulkWriter) run(limiter *ratelimiter.Limiter) {
	pending := iwrite.NewPendingQueue()
	retryHeap := iwrite.NewRetryHeap()
	// inFlight maps a DocumentID to the single Item currently holding
	// its slot. The slot is claimed on first dispatch and is NOT
	// released when that dispatch comes back retryable (spec §4.5:
	// "A second write to the same document is held in pendingQueue
	// until the prior batch resolves") — it stays held through the
	// item's whole retry chain and is only released once the item
	// resolves, success or terminal error. A redispatch of the same
	// item (after its backoff elapses) is recognized by identity and
	// allowed to pass through its own lock.
	inFlight := map[resourcepath.DocumentID]*iwrite.Item{}
	inFlightBatches := 0
	closed := false
	var closeReply chan struct{}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	resetTimer := func(d time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if d <= 0 {
			d = time.Millisecond
		}
		timer.Reset(d)
	}

	for {
		now := time.Now()
		for _, item := range retryHeap.DrainReady(now) {
			pending.PushBack(item)
		}

		if closed && pending.Len() == 0 && retryHeap.Len() == 0 && inFlightBatches == 0 {
			close(w.loopDone)
			if closeReply != nil {
				close(closeReply)
			}
			return
		}

		claimed := map[resourcepath.DocumentID]struct{}{}
		batch := pending.Take(MaxBatchSize, func(it *iwrite.Item) bool {
			if owner, busy := inFlight[it.Target]; busy && owner != it {
				return false
			}
			if _, busy := claimed[it.Target]; busy {
				return false
			}
			claimed[it.Target] = struct{}{}
			return true
		})
		if len(batch) > 0 {
			if granted, retryAfter := limiter.TryAcquire(len(batch)); granted {
				for _, it := range batch {
					inFlight[it.Target] = it
				}
				inFlightBatches++
				wlog.Debug("dispatching batch", "size", len(batch))
				go w.dispatch(batch)
			} else {
				for i := len(batch) - 1; i >= 0; i-- {
					pending.PushFront(batch[i])
				}
				resetTimer(retryAfter)
				batch = nil
			}
		}

		if readyAt, ok := retryHeap.PeekReadyAt(); ok {
			resetTimer(time.Until(readyAt))
		}

		select {
		case req := <-w.enqueueCh:
			if closed {
				req.accept <- false
				continue
			}
			req.accept <- true
			pending.PushBack(iwrite.NewItem(req.op, req.future, backoff.NewScheduler(backoff.Options{})))
		case reply := <-w.closeCh:
			closed = true
			closeReply = reply
		case res := <-w.resultsCh:
			resolved := w.handleDispatchResult(res, retryHeap)
			for _, target := range resolved {
				delete(inFlight, target)
			}
			inFlightBatches--
		case <-timer.C:
			// wake up and re-evaluate
		}
	}
}

func (w *BulkWriter) dispatch(batch []*iwrite.Item) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.OperationDeadline)
	defer cancel()
	ops := make([]writeop.Op, len(batch))
	for i, it := range batch {
		ops[i] = it.Op
	}
	results, err := w.client.BatchWrite(ctx, ops)
	w.resultsCh <- dispatchResult{items: batch, results: results, err: err}
}

// handleDispatchResult resolves or reschedules every item in res and
// returns the DocumentIDs that are now fully resolved — success or
// terminal error — and whose inFlight slot the caller may release.
// An item pushed back into retryHeap is NOT included: per spec §4.5
// its document stays locked until that retry itself resolves, so a
// newer pending write to the same document cannot jump ahead of it.
func (w *BulkWriter) handleDispatchResult(res dispatchResult, retryHeap *iwrite.RetryHeap) []resourcepath.DocumentID {
	onSuccess := w.successCallback()
	onError := w.errorCallback()

	var resolved []resourcepath.DocumentID
	for i, item := range res.items {
		var werr *status.Error
		var wres rpc.WriteResult
		switch {
		case res.err != nil:
			werr = classify(res.err)
		case i < len(res.results) && res.results[i].Err != nil:
			werr = res.results[i].Err
		case i < len(res.results):
			wres = res.results[i].Result
		default:
			werr = status.New(status.Internal, "bulkwriter: missing result for write to %s", item.Target)
		}

		if werr == nil {
			if onSuccess != nil {
				onSuccess(item.Op, wres)
			}
			item.Future.ResolveSuccess(wres)
			resolved = append(resolved, item.Target)
			continue
		}

		item.FailedAttempts++
		if w.opts.resolveRetry(werr.Code, item.FailedAttempts, werr) {
			delay := item.Backoff.NextDelay()
			item.ReadyAt = time.Now().Add(delay)
			retryHeap.Push(item)
			wlog.Debug("scheduling retry", "target", string(item.Target), "attempt", item.FailedAttempts, "delay", delay.String())
			continue
		}

		we := &WriteError{FailedAttempts: item.FailedAttempts, Code: werr.Code, Message: werr.Message, Op: item.Op}
		if onError != nil {
			onError(item.Op, we)
		}
		item.Future.ResolveError(we)
		resolved = append(resolved, item.Target)
	}
	return resolved
}

// classify wraps an opaque transport/whole-batch error as a
// status.Error so it can be uniformly attributed to every operation
// in the failed batch, per spec §4.5 "Failure semantics": "Network or
// whole-batch failures: propagate per-operation, treated as if every
// operation in the batch failed with the same code."
func classify(err error) *status.Error {
	if se, ok := status.FromError(err); ok {
		return se
	}
	return &status.Error{Code: status.Unavailable, Message: err.Error(), Cause: err}
}
