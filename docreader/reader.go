// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package docreader implements the batch-get document reader of spec
// §4.7: it requests an ordered list of documents, reassembles
// out-of-order stream responses into input order, and — outside a
// transaction — retries only the unreceived subset on a mid-stream
// transient failure.
package docreader

import (
	"context"
	"io"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/docdbio/admin-go/backoff"
	"github.com/docdbio/admin-go/internal/wlog"
	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/status"
)

// Result is the outcome of a successful BatchGet: document snapshots
// in input order, plus the transaction token the server assigned if
// the caller requested a new transaction.
type Result struct {
	Snapshots        []rpc.DocumentSnapshot
	TransactionToken []byte
}

// BatchGet reads paths (in order), applying mask and tc. See spec
// §4.7 for the partial-progress retry rule: a mid-stream failure
// inside a transaction (tc carries a Token or NewTransaction) always
// propagates — the transaction runner retries the whole attempt; a
// mid-stream failure outside a transaction retries only the
// unreceived documents, and only if the failure code is in
// status.BatchGetRetrySet and at least one document was already
// received.
//
// The pass-to-pass retry loop is driven by cenkalti's
// backoff.RetryNotify: each pass is one attempt, backoff.Scheduler
// supplies the delay between passes, and backoff.Permanent marks a
// result that must not be retried (success or a fatal code) so
// RetryNotify stops immediately instead of consuming another delay.
func BatchGet(ctx context.Context, client rpc.Client, paths []resourcepath.ResourcePath, mask []resourcepath.FieldPath, tc rpc.TransactionContext) (Result, error) {
	if len(paths) == 0 {
		return Result{}, nil
	}

	remaining := paths
	received := make(map[string]rpc.DocumentSnapshot, len(paths))
	var token []byte
	inTransaction := tc.Token != nil || tc.NewTransaction

	pass := func() error {
		stream, err := client.BatchGetDocuments(ctx, remaining, mask, tc)
		if err != nil {
			return cenkalti.Permanent(errors.Wrap(err, "docreader: batch-get"))
		}

		receivedThisPass := 0
		var streamErr error
		for {
			res, rerr := stream.Recv()
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				streamErr = rerr
				break
			}
			received[res.Snapshot.Path.String()] = res.Snapshot
			if len(res.TransactionToken) > 0 {
				token = res.TransactionToken
			}
			receivedThisPass++
		}

		if streamErr == nil {
			return nil
		}

		if inTransaction {
			return cenkalti.Permanent(streamErr)
		}

		se, ok := status.FromError(streamErr)
		retryable := ok && status.BatchGetRetrySet.Contains(se.Code)
		if !retryable || receivedThisPass == 0 {
			return cenkalti.Permanent(streamErr)
		}

		remaining = unreceivedOf(paths, received)
		// A retried request must not ask for a second new transaction;
		// reuse whatever token the first pass's partial stream handed
		// back, if any.
		if len(token) > 0 {
			tc.NewTransaction = false
			tc.Token = token
		}
		return streamErr
	}

	notify := func(err error, delay time.Duration) {
		wlog.Warn("batch-get: retrying unreceived documents", "remaining", len(remaining), "delay", delay.String(), "error", err.Error())
	}

	sched := cenkalti.WithContext(backoff.NewScheduler(backoff.Options{}), ctx)
	if err := cenkalti.RetryNotify(pass, sched, notify); err != nil {
		return Result{}, unwrapPermanent(err)
	}

	snapshots := make([]rpc.DocumentSnapshot, len(paths))
	for i, p := range paths {
		snap, ok := received[p.String()]
		if !ok {
			return Result{}, status.New(status.Internal, "docreader: no result received for %s", p.String())
		}
		snapshots[i] = snap
	}
	return Result{Snapshots: snapshots, TransactionToken: token}, nil
}

// unwrapPermanent undoes cenkalti's backoff.Permanent wrapping so
// callers see the original status.Error (or wrapped client error)
// rather than cenkalti's own *PermanentError.
func unwrapPermanent(err error) error {
	if pe, ok := err.(*cenkalti.PermanentError); ok {
		return pe.Err
	}
	return err
}

func unreceivedOf(paths []resourcepath.ResourcePath, received map[string]rpc.DocumentSnapshot) []resourcepath.ResourcePath {
	out := make([]resourcepath.ResourcePath, 0, len(paths))
	for _, p := range paths {
		if _, ok := received[p.String()]; !ok {
			out = append(out, p)
		}
	}
	return out
}
