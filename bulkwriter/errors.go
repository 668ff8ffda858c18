// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package bulkwriter

import (
	"fmt"

	"github.com/docdbio/admin-go/status"
	"github.com/docdbio/admin-go/writeop"
)

// WriteError is the terminal failure a write resolves to once the
// retry policy gives up on it (spec §3): it carries the number of
// server-attributable failed attempts (starting at 1), the
// classified code, a message, and the offending operation.
type WriteError struct {
	FailedAttempts int
	Code           status.Code
	Message        string
	Op             writeop.Op
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("bulkwriter: write to %s failed after %d attempt(s): %s: %s",
		e.Op.Target(), e.FailedAttempts, e.Code, e.Message)
}

// ErrClosed is returned by Create/Set/Update/Delete once Close has
// been called (spec §8 property 10: "A write queued after close() is
// rejected with invalid-argument").
var ErrClosed = status.New(status.InvalidArgument, "bulkwriter: writer is closed")
