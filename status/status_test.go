// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package status

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code Code
		want Class
	}{
		{OK, ClassOK},
		{Unavailable, ClassUnavailable},
		{Internal, ClassInternal},
		{DeadlineExceeded, ClassDeadline},
		{Aborted, ClassRetryableContention},
		{PermissionDenied, ClassPermission},
		{Unauthenticated, ClassUnauthenticated},
		{InvalidArgument, ClassInvalid},
		{NotFound, ClassNotFound},
		{AlreadyExists, ClassAlreadyExists},
		{FailedPrecondition, ClassInvalid},
		{Cancelled, ClassFatalOther},
		{Unknown, ClassRetryableTransient},
		{ResourceExhausted, ClassRetryableTransient},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.code), "code=%s", c.code)
	}
}

func TestRetrySets(t *testing.T) {
	assert.True(t, BatchGetRetrySet.Contains(Unavailable))
	assert.True(t, BatchGetRetrySet.Contains(Internal))
	assert.True(t, BatchGetRetrySet.Contains(DeadlineExceeded))
	assert.False(t, BatchGetRetrySet.Contains(Aborted))

	assert.True(t, CommitRetrySet.Contains(Aborted))
	assert.True(t, CommitRetrySet.Contains(Unavailable))
	assert.True(t, CommitRetrySet.Contains(Internal))
	assert.False(t, CommitRetrySet.Contains(DeadlineExceeded))

	assert.True(t, BulkWriterDefaultRetrySet.Contains(Cancelled))
	assert.True(t, BulkWriterDefaultRetrySet.Contains(ResourceExhausted))
}

func TestIsDefaultRetryable(t *testing.T) {
	assert.True(t, IsDefaultRetryable(Unavailable))
	assert.True(t, IsDefaultRetryable(Aborted))
	assert.False(t, IsDefaultRetryable(AlreadyExists))
	assert.False(t, IsDefaultRetryable(FailedPrecondition))
	assert.False(t, IsDefaultRetryable(PermissionDenied))
	assert.False(t, IsDefaultRetryable(Unauthenticated))
	assert.False(t, IsDefaultRetryable(InvalidArgument))
	assert.False(t, IsDefaultRetryable(NotFound))
}

func TestErrorFormatting(t *testing.T) {
	err := New(Unavailable, "server unreachable: %s", "timeout")
	assert.Equal(t, "Unavailable: server unreachable: timeout", err.Error())
	assert.Equal(t, Unavailable, CodeOf(err))

	wrapped := fmt.Errorf("doing thing: %w", err)
	got, ok := FromError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, err, got)
}
