// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package status classifies server response codes into the retry
// semantics the rest of this module depends on: which codes are
// transient, which indicate contention, and which are terminal.
package status

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code is the server status code vocabulary this client understands.
// It is a thin alias over gRPC's status codes rather than a bespoke
// enum: every server this client talks to reports errors through a
// gRPC-style status, and reusing codes.Code keeps classification a
// simple switch instead of a translation table.
type Code = codes.Code

// Re-exported for callers that want to build a Code without importing
// google.golang.org/grpc/codes directly.
const (
	OK                 = codes.OK
	Cancelled          = codes.Canceled
	Unknown            = codes.Unknown
	InvalidArgument    = codes.InvalidArgument
	DeadlineExceeded   = codes.DeadlineExceeded
	NotFound           = codes.NotFound
	AlreadyExists      = codes.AlreadyExists
	PermissionDenied   = codes.PermissionDenied
	ResourceExhausted  = codes.ResourceExhausted
	FailedPrecondition = codes.FailedPrecondition
	Aborted            = codes.Aborted
	Unavailable        = codes.Unavailable
	Internal           = codes.Internal
	Unauthenticated    = codes.Unauthenticated
)

// Class is the coarse classification a Code maps to.
type Class int

const (
	ClassOK Class = iota
	ClassRetryableTransient
	ClassRetryableContention
	ClassPermission
	ClassInvalid
	ClassNotFound
	ClassAlreadyExists
	ClassUnavailable
	ClassDeadline
	ClassInternal
	ClassUnauthenticated
	ClassAborted
	ClassFatalOther
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassRetryableTransient:
		return "retryable-transient"
	case ClassRetryableContention:
		return "retryable-contention"
	case ClassPermission:
		return "permission"
	case ClassInvalid:
		return "invalid"
	case ClassNotFound:
		return "not-found"
	case ClassAlreadyExists:
		return "already-exists"
	case ClassUnavailable:
		return "unavailable"
	case ClassDeadline:
		return "deadline"
	case ClassInternal:
		return "internal"
	case ClassUnauthenticated:
		return "unauthenticated"
	case ClassAborted:
		return "aborted"
	default:
		return "fatal-other"
	}
}

// Classify maps a server status code to its coarse classification.
func Classify(c Code) Class {
	switch c {
	case codes.OK:
		return ClassOK
	case codes.Unavailable:
		return ClassUnavailable
	case codes.Internal:
		return ClassInternal
	case codes.DeadlineExceeded:
		return ClassDeadline
	case codes.Aborted:
		return ClassRetryableContention
	case codes.PermissionDenied:
		return ClassPermission
	case codes.Unauthenticated:
		return ClassUnauthenticated
	case codes.InvalidArgument:
		return ClassInvalid
	case codes.NotFound:
		return ClassNotFound
	case codes.AlreadyExists:
		return ClassAlreadyExists
	case codes.FailedPrecondition:
		return ClassInvalid
	case codes.Canceled:
		return ClassFatalOther
	case codes.Unknown, codes.ResourceExhausted:
		return ClassRetryableTransient
	default:
		return ClassFatalOther
	}
}

// retrySet is a small, order-independent membership set over codes.
type retrySet map[Code]struct{}

func newRetrySet(codes ...Code) retrySet {
	s := make(retrySet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s retrySet) Contains(c Code) bool {
	_, ok := s[c]
	return ok
}

var (
	// BatchGetRetrySet: §4.1 — codes that make a batch-get partial
	// retry (outside a transaction) worthwhile.
	BatchGetRetrySet = newRetrySet(Unavailable, Internal, DeadlineExceeded)

	// CommitRetrySet: §4.1 — codes the transaction runner retries an
	// entire attempt for.
	CommitRetrySet = newRetrySet(Aborted, Unavailable, Internal)

	// TransactionReadRetrySet: §4.6 step 2, §4.7 — codes that make a
	// transient failure surfaced from a read inside a transaction (as
	// opposed to the user function's own application error) retry the
	// whole attempt, the same way a CommitRetrySet code from the commit
	// RPC does. Deadline-exceeded is included here (unlike
	// CommitRetrySet) because it is part of BatchGetRetrySet and a
	// dropped read stream can surface it.
	TransactionReadRetrySet = newRetrySet(Aborted, Unavailable, Internal, DeadlineExceeded)

	// BulkWriterDefaultRetrySet: §4.1 — the BulkWriter's default retry
	// policy, consulted when the user's retry predicate delegates.
	//
	// Cancelled is included here exactly as spec.md documents, even
	// though it is unusual to retry a cancellation by default — see
	// the Open Question decision in DESIGN.md.
	BulkWriterDefaultRetrySet = newRetrySet(
		Cancelled, Unknown, Internal, Unavailable, DeadlineExceeded,
		ResourceExhausted, Aborted,
	)

	// neverRetried are codes no default retry set may ever contain,
	// even if a caller mistakenly adds them: they are contractual
	// fatal codes per spec §4.1.
	neverRetried = newRetrySet(
		AlreadyExists, FailedPrecondition, PermissionDenied,
		Unauthenticated, InvalidArgument, NotFound,
	)
)

// IsDefaultRetryable reports whether c is retried by the
// BulkWriter's built-in policy, without consulting any user predicate.
func IsDefaultRetryable(c Code) bool {
	if neverRetried.Contains(c) {
		return false
	}
	return BulkWriterDefaultRetrySet.Contains(c)
}

// Error is a terminal, user-facing error carrying a classified status
// code. It is this module's analogue of the teacher's http2.Error:
// a concrete type with a Code, a Message and, for rate-limited
// responses, a server-suggested retry delay.
type Error struct {
	Code    Code
	Message string
	// RetryAfter, when non-zero, is a server-suggested delay before
	// the next attempt (e.g. from a rate-limit response).
	RetryAfter int64
	// Cause is the underlying transport error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s", e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a status.Error with the given code and formatted message.
func New(c Code, format string, args ...interface{}) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(format, args...)}
}

// FromError extracts a *Error from err, if any is present in its chain.
func FromError(err error) (*Error, bool) {
	for err != nil {
		if se, ok := err.(*Error); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}

// CodeOf returns the classified code of err, or codes.Unknown if err
// does not carry one.
func CodeOf(err error) Code {
	if err == nil {
		return codes.OK
	}
	if se, ok := FromError(err); ok {
		return se.Code
	}
	return codes.Unknown
}
