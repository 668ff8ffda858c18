// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package backoff implements the exponential-backoff scheduler shared
// by bulkwriter and txn (spec §4.2). It is a pure, stateful retry-delay
// calculator: it never sleeps. Callers suspend themselves for the
// returned duration, exactly as spec §9 ("Cooperative scheduling")
// requires.
//
// Scheduler implements github.com/cenkalti/backoff/v4's BackOff
// interface (NextBackOff/Reset). docreader.BatchGet composes it
// directly with cenkalti's backoff.RetryNotify (via backoff.WithContext)
// to drive its pass-to-pass partial-retry loop; txn.Run instead drives
// its own loop by calling NextDelay directly, since spec §4.6 needs a
// fresh Transaction per attempt, which RetryNotify's plain func() error
// signature can't thread through.
package backoff

import (
	"math/rand"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
)

// Defaults per spec §4.2.
const (
	DefaultInitialDelay = 500 * time.Millisecond
	DefaultMaxDelay     = 60 * time.Second
	DefaultMultiplier   = 1.5
	DefaultJitter       = 0.2
)

// Options configures a Scheduler. The zero value is not ready for use;
// call NewScheduler, which applies the spec's defaults for any zero
// field.
type Options struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the ± fraction applied to each delay. Zero selects
	// DefaultJitter; a negative value disables jitter.
	Jitter float64
	// Rand, if set, is used for jitter instead of a package-seeded
	// source. Tests supply a seeded *rand.Rand for determinism, per
	// spec §9 ("implementation must use a seeded PRNG for tests to be
	// deterministic").
	Rand *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Multiplier <= 0 {
		o.Multiplier = DefaultMultiplier
	}
	if o.Jitter == 0 {
		o.Jitter = DefaultJitter
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Scheduler is a per-retry-chain backoff calculator. It is not safe
// for concurrent use by multiple goroutines, matching the
// single-threaded cooperative core the BulkWriter and Transaction
// runner are specified to be (spec §5).
type Scheduler struct {
	opts    Options
	current time.Duration
	attempt int
}

// NewScheduler builds a Scheduler, filling unset fields in opts with
// the spec's defaults.
func NewScheduler(opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{opts: opts, current: opts.InitialDelay}
}

// NextDelay returns the next delay to sleep for and advances the
// scheduler's internal state. Per spec §4.2:
//
//	delay = min(maxDelay, current) * (1 + uniform(-jitter, +jitter))
//	current = min(maxDelay, current * multiplier)
func (s *Scheduler) NextDelay() time.Duration {
	base := s.current
	if base > s.opts.MaxDelay {
		base = s.opts.MaxDelay
	}
	jittered := applyJitter(base, s.opts.Jitter, s.opts.Rand)

	next := time.Duration(float64(s.current) * s.opts.Multiplier)
	if next > s.opts.MaxDelay {
		next = s.opts.MaxDelay
	}
	s.current = next
	s.attempt++
	return jittered
}

// NextBackOff implements cenkalti's backoff.BackOff. cenkalti's
// convention is to signal "stop retrying" with backoff.Stop
// (-1); this scheduler never does that on its own — the spec's
// retry-attempt ceiling is enforced by callers (BulkWriter's user
// predicate, txn's maxAttempts), not by the scheduler itself.
func (s *Scheduler) NextBackOff() time.Duration {
	return s.NextDelay()
}

// Reset restores the scheduler to its initial delay and zeroes the
// attempt counter, per spec §4.2.
func (s *Scheduler) Reset() {
	s.current = s.opts.InitialDelay
	s.attempt = 0
}

// Attempt returns the number of NextDelay calls since construction or
// the last Reset.
func (s *Scheduler) Attempt() int { return s.attempt }

func applyJitter(d time.Duration, jitter float64, r *rand.Rand) time.Duration {
	if jitter <= 0 {
		return d
	}
	// uniform(-jitter, +jitter)
	factor := 1 + (r.Float64()*2-1)*jitter
	return time.Duration(float64(d) * factor)
}

var _ cenkalti.BackOff = (*Scheduler)(nil)
