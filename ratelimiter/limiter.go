// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package ratelimiter implements the BulkWriter's adaptive
// token-bucket rate limiter (spec §4.3): it starts at a conservative
// throughput, ramps up geometrically toward a ceiling, and grants or
// defers acquisitions of n tokens at a time.
//
// The bucket itself is golang.org/x/time/rate's Limiter — the
// idiomatic Go token-bucket primitive, a sibling package of the
// teacher's golang.org/x/net dependency. This package layers the
// spec's ramp-up schedule and disabled-mode pass-through on top of it.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Defaults per spec §4.3 and §6.
const (
	DefaultInitialOpsPerSec = 500
	DefaultMaxOpsPerSec     = 10000
	DefaultRampUpInterval   = 5 * time.Minute
)

// Options configures a Limiter.
type Options struct {
	// Disabled puts the limiter in pass-through mode: tryAcquire
	// always grants immediately, per spec §4.3.
	Disabled bool

	InitialOpsPerSec int
	MaxOpsPerSec     int
	RampUpInterval   time.Duration

	// clock is overridable by tests; production code leaves it nil
	// and gets time.Now.
	clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.InitialOpsPerSec <= 0 {
		o.InitialOpsPerSec = DefaultInitialOpsPerSec
	}
	if o.MaxOpsPerSec <= 0 {
		o.MaxOpsPerSec = DefaultMaxOpsPerSec
	}
	if o.MaxOpsPerSec < o.InitialOpsPerSec {
		o.MaxOpsPerSec = o.InitialOpsPerSec
	}
	if o.RampUpInterval <= 0 {
		o.RampUpInterval = DefaultRampUpInterval
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// Limiter is the BulkWriter's adaptive rate limiter.
type Limiter struct {
	opts     Options
	bucket   *rate.Limiter
	capacity int
	rampFrom time.Time
}

// New builds a Limiter from opts, filling in spec defaults for any
// zero field.
func New(opts Options) *Limiter {
	opts = opts.withDefaults()
	l := &Limiter{
		opts:     opts,
		capacity: opts.InitialOpsPerSec,
		rampFrom: opts.clock(),
	}
	if !opts.Disabled {
		l.bucket = rate.NewLimiter(rate.Limit(l.capacity), l.capacity)
	}
	return l
}

// TryAcquire attempts to grant n tokens immediately. If granted,
// (true, 0) is returned. Otherwise (false, retryAfter) is returned,
// where retryAfter is the duration after which n tokens will be
// available — even when n exceeds the current capacity (spec §4.3
// edge case: "n > capacity must still eventually grant").
func (l *Limiter) TryAcquire(n int) (bool, time.Duration) {
	if l.opts.Disabled {
		return true, 0
	}
	l.maybeRampUp()

	now := l.opts.clock()
	res := l.bucket.ReserveN(now, n)
	if !res.OK() {
		// n tokens will never fit the burst at the current capacity
		// even after waiting; fall back to the direct formula from
		// spec §4.3 (n / capacity seconds) rather than reporting an
		// unsatisfiable reservation.
		return false, time.Duration(float64(n) / float64(l.capacity) * float64(time.Second))
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return true, 0
	}
	// Not enough tokens are available yet: cancel the reservation so
	// it doesn't consume future capacity, and report when it would
	// have been satisfied. Callers that want to actually wait use
	// Wait, not TryAcquire.
	res.CancelAt(now)
	return false, delay
}

// Wait blocks until n tokens are available, honoring ctx cancellation
// via the underlying golang.org/x/time/rate.Limiter.Wait contract.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l.opts.Disabled {
		return nil
	}
	l.maybeRampUp()
	return l.bucket.WaitN(ctx, n)
}

// Capacity returns the current ops/sec cap.
func (l *Limiter) Capacity() int {
	if l.opts.Disabled {
		return -1
	}
	return l.capacity
}

// maybeRampUp grows capacity by 50% every RampUpInterval since the
// limiter (or its last ramp) started, per spec §4.3, up to
// MaxOpsPerSec.
func (l *Limiter) maybeRampUp() {
	if l.capacity >= l.opts.MaxOpsPerSec {
		return
	}
	now := l.opts.clock()
	elapsed := now.Sub(l.rampFrom)
	if elapsed < l.opts.RampUpInterval {
		return
	}
	steps := int(elapsed / l.opts.RampUpInterval)
	newCapacity := l.capacity
	for i := 0; i < steps; i++ {
		newCapacity = int(float64(newCapacity) * 1.5)
		if newCapacity >= l.opts.MaxOpsPerSec {
			newCapacity = l.opts.MaxOpsPerSec
			break
		}
	}
	if newCapacity != l.capacity {
		l.capacity = newCapacity
		l.bucket.SetLimit(rate.Limit(l.capacity))
		l.bucket.SetBurst(l.capacity)
	}
	l.rampFrom = l.rampFrom.Add(time.Duration(steps) * l.opts.RampUpInterval)
}
