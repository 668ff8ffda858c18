// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package txn

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docdbio/admin-go/backoff"
	"github.com/docdbio/admin-go/internal/wlog"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/status"
)

// Fn is a user transaction function: it reads and buffers writes
// against tx, returning an error to abort the attempt outright (this
// is distinct from a commit failure — see Run).
type Fn func(ctx context.Context, tx *Transaction) error

// Options configures Run (spec §6 "Transaction").
type Options struct {
	ReadOnly bool
	// ReadTime, if set, requests a read-only snapshot at that time
	// (valid only with ReadOnly; must be no more than 270s in the
	// past — the caller is responsible for that check since this
	// package has no wall-clock authority over the server's notion of
	// "now").
	ReadTime time.Time
	// MaxAttempts defaults to 5 for a read-write transaction and is
	// forced to 1 for a read-only one, regardless of what is set here.
	MaxAttempts int
}

func (o Options) resolveMaxAttempts() int {
	if o.ReadOnly {
		return 1
	}
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return 5
}

// Result is the outcome of a committed read-write attempt. A
// successful read-only run or a run with no buffered writes returns a
// zero-value Result.
type Result struct {
	CommitTime time.Time
	Writes     []rpc.WriteResult
}

// Run drives fn through spec §4.6's retry protocol: on `aborted` or
// any CommitRetrySet code from commit, and on any TransactionReadRetrySet
// code surfaced by fn's own reads (spec §4.6 step 2, §4.7: "partial-progress
// retry is disabled inside transactions — the entire transaction retries
// on transient failure"), it rolls back best-effort, sleeps a backoff
// delay, and restarts fn from scratch with a fresh Transaction (a fresh
// token, empty write buffer) — up to Options.resolveMaxAttempts(). Any
// other error fn returns (e.g. a read-after-write invalid-argument, or
// the caller's own application error) aborts immediately without being
// retried.
//
// The same backoff.Scheduler is reused across every attempt of one
// Run call rather than reset per attempt, so the delay sequence stays
// monotone non-decreasing across the whole run (spec §8 property 5).
func Run(ctx context.Context, client rpc.Client, opts Options, fn Fn) (Result, error) {
	maxAttempts := opts.resolveMaxAttempts()
	sched := backoff.NewScheduler(backoff.Options{})
	// attemptID correlates this Run call's log lines across retried
	// attempts, the way the teacher's per-batch RetryAttempts counter
	// lets a reader find one batch's retries in its logs — but a
	// transaction retry restarts fn from scratch under a fresh
	// Transaction, so a counter alone can't distinguish one Run call's
	// attempts from another's interleaved on the same logger.
	attemptID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx := newTransaction(client, opts.ReadOnly, opts.ReadTime)

		if err := fn(ctx, tx); err != nil {
			se, ok := status.FromError(err)
			retryable := ok && status.TransactionReadRetrySet.Contains(se.Code)
			if !retryable || attempt == maxAttempts {
				return Result{}, err
			}

			lastErr = err
			if rerr := client.Rollback(ctx, tx.token); rerr != nil {
				wlog.Debug("transaction rollback failed (best-effort, ignored)", "attempt_id", attemptID, "error", rerr.Error())
			}

			delay := sched.NextDelay()
			wlog.Debug("retrying transaction after transient read failure", "attempt_id", attemptID, "attempt", attempt+1, "code", se.Code.String(), "delay", delay.String())
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		if opts.ReadOnly {
			// spec §4.6 step 6: read-only transactions have no commit
			// RPC; the token alone suffices.
			return Result{}, nil
		}

		if len(tx.writes) == 0 {
			return Result{}, nil
		}

		tx.state = StateCommitting
		commitTime, results, err := client.Commit(ctx, tx.token, tx.writes)
		if err == nil {
			tx.state = StateDone
			return Result{CommitTime: commitTime, Writes: results}, nil
		}

		tx.state = StateFailed
		lastErr = err
		if rerr := client.Rollback(ctx, tx.token); rerr != nil {
			wlog.Debug("transaction rollback failed (best-effort, ignored)", "attempt_id", attemptID, "error", rerr.Error())
		}

		se, ok := status.FromError(err)
		retryable := ok && status.CommitRetrySet.Contains(se.Code)
		if !retryable || attempt == maxAttempts {
			return Result{}, err
		}

		delay := sched.NextDelay()
		wlog.Debug("retrying transaction", "attempt_id", attemptID, "attempt", attempt+1, "delay", delay.String())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return Result{}, lastErr
}
