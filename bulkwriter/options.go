// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package bulkwriter

import (
	"time"

	"github.com/docdbio/admin-go/status"
)

// MaxBatchSize is fixed at 20 per spec §4.5/§6; it is not
// configurable.
const MaxBatchSize = 20

// RetryDecision is the three-way outcome of a RetryPredicate, spec
// §9 ("Retry predicate"). Unlike the teacher's WriteFailedCallback
// (a plain bool), this has a distinct Delegate value: spec.md's
// predicate signature is "(code, failedAttempts, error) →
// RetryDecision{retry|stop|delegate-to-default}", which a boolean
// cannot express.
type RetryDecision int

const (
	// RetryDecisionDelegate defers to the BulkWriter's default retry
	// set (status.IsDefaultRetryable).
	RetryDecisionDelegate RetryDecision = iota
	RetryDecisionRetry
	RetryDecisionStop
)

// RetryPredicate lets a caller override the default retry policy per
// failed write. Returning RetryDecisionDelegate applies
// status.IsDefaultRetryable.
type RetryPredicate func(code status.Code, failedAttempts int, err error) RetryDecision

// ThrottlingMode selects whether the rate limiter is active.
type ThrottlingMode int

const (
	ThrottlingEnabled ThrottlingMode = iota
	ThrottlingDisabled
)

// Options configures a BulkWriter, mirroring the teacher's
// write.Options fluent-setter shape (spec §6 "Configuration").
type Options struct {
	ThrottlingMode      ThrottlingMode
	InitialOpsPerSec    int
	MaxOpsPerSec        int
	RampUpInterval      time.Duration
	RetryPredicate      RetryPredicate
	// OperationDeadline bounds each individual RPC (spec §5); defaults
	// to 10 minutes.
	OperationDeadline time.Duration
}

// DefaultOptions returns an Options with every spec §6 default filled
// in: throttling enabled, initialOpsPerSec=500, maxOpsPerSec=10000,
// rampUpIntervalMs=300000 (5 min), operation deadline 10 minutes.
func DefaultOptions() Options {
	return Options{
		ThrottlingMode:    ThrottlingEnabled,
		InitialOpsPerSec:  500,
		MaxOpsPerSec:      10000,
		RampUpInterval:    5 * time.Minute,
		OperationDeadline: 10 * time.Minute,
	}
}

// SetThrottlingMode sets whether the adaptive rate limiter is active.
func (o Options) SetThrottlingMode(m ThrottlingMode) Options {
	o.ThrottlingMode = m
	return o
}

// SetInitialOpsPerSec overrides the limiter's starting throughput.
func (o Options) SetInitialOpsPerSec(n int) Options {
	o.InitialOpsPerSec = n
	return o
}

// SetMaxOpsPerSec overrides the limiter's throughput ceiling.
func (o Options) SetMaxOpsPerSec(n int) Options {
	o.MaxOpsPerSec = n
	return o
}

// SetRampUpInterval overrides how often the limiter's cap grows.
func (o Options) SetRampUpInterval(d time.Duration) Options {
	o.RampUpInterval = d
	return o
}

// SetRetryPredicate installs a custom retry policy.
func (o Options) SetRetryPredicate(p RetryPredicate) Options {
	o.RetryPredicate = p
	return o
}

// SetOperationDeadline overrides the per-RPC deadline.
func (o Options) SetOperationDeadline(d time.Duration) Options {
	o.OperationDeadline = d
	return o
}

func (o Options) resolveRetry(code status.Code, failedAttempts int, err error) bool {
	if o.RetryPredicate != nil {
		switch o.RetryPredicate(code, failedAttempts, err) {
		case RetryDecisionRetry:
			return true
		case RetryDecisionStop:
			return false
		case RetryDecisionDelegate:
			// fall through to default
		}
	}
	return status.IsDefaultRetryable(code)
}
