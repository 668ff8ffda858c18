// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package txn implements the transaction state machine and retrying
// runner of spec §4.6: a {NotStarted → Reading → Writing → Committing →
// Done|Failed} machine (spec §9 "Transaction as a state machine") where
// every illegal transition — a read after a write in the same attempt —
// is an invalid-argument failure rather than a panic or a silent
// no-op.
package txn

import (
	"context"
	"time"

	"github.com/docdbio/admin-go/docreader"
	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/rpc"
	"github.com/docdbio/admin-go/status"
	"github.com/docdbio/admin-go/writeop"
)

// State is one node of the transaction state machine.
type State int

const (
	StateNotStarted State = iota
	StateReading
	StateWriting
	StateCommitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transaction is a single attempt of a user function: it buffers
// writes locally (spec §4.6 step 3: "buffered only; no round-trip
// until commit") and lazily begins on the first read.
type Transaction struct {
	client   rpc.Client
	readOnly bool
	readTime time.Time

	state  State
	token  []byte
	writes []writeop.Op
}

func newTransaction(client rpc.Client, readOnly bool, readTime time.Time) *Transaction {
	return &Transaction{client: client, readOnly: readOnly, readTime: readTime, state: StateNotStarted}
}

// State returns the transaction's current state.
func (t *Transaction) State() State { return t.state }

// ReadOnly reports whether this attempt is read-only.
func (t *Transaction) ReadOnly() bool { return t.readOnly }

// Get reads a single document. See GetAll.
func (t *Transaction) Get(ctx context.Context, path resourcepath.ResourcePath) (rpc.DocumentSnapshot, error) {
	snaps, err := t.GetAll(ctx, []resourcepath.ResourcePath{path}, nil)
	if err != nil {
		return rpc.DocumentSnapshot{}, err
	}
	return snaps[0], nil
}

// GetAll reads paths under this transaction's token, lazily beginning
// the transaction on the first call (spec §4.6 step 1). A read issued
// after this attempt has buffered a write is rejected with
// invalid-argument (spec §4.6 invariant, §8 property 11's write-side
// counterpart): this runner never interleaves a read-after-write
// within one attempt.
func (t *Transaction) GetAll(ctx context.Context, paths []resourcepath.ResourcePath, mask []resourcepath.FieldPath) ([]rpc.DocumentSnapshot, error) {
	if t.state == StateWriting || t.state == StateCommitting || t.state == StateDone || t.state == StateFailed {
		return nil, status.New(status.InvalidArgument, "txn: read after write is not supported within one attempt")
	}

	tc := rpc.TransactionContext{ReadOnly: t.readOnly}
	if len(t.token) == 0 {
		tc.NewTransaction = true
		tc.ReadTime = t.readTime
	} else {
		tc.Token = t.token
	}

	result, err := docreader.BatchGet(ctx, t.client, paths, mask, tc)
	if err != nil {
		t.state = StateFailed
		return nil, err
	}
	if len(t.token) == 0 && len(result.TransactionToken) > 0 {
		t.token = result.TransactionToken
	}
	t.state = StateReading
	return result.Snapshots, nil
}

// Create buffers a Create operation for commit.
func (t *Transaction) Create(target resourcepath.DocumentID, values writeop.FieldValues) error {
	op, err := writeop.Create(target, values)
	if err != nil {
		return err
	}
	return t.buffer(op)
}

// Set buffers a Set operation for commit.
func (t *Transaction) Set(target resourcepath.DocumentID, values writeop.FieldValues, precondition writeop.Precondition, opts ...writeop.SetOption) error {
	op, err := writeop.Set(target, values, precondition, opts...)
	if err != nil {
		return err
	}
	return t.buffer(op)
}

// Update buffers an Update operation for commit.
func (t *Transaction) Update(target resourcepath.DocumentID, updates writeop.FieldValues, precondition ...writeop.Precondition) error {
	op, err := writeop.Update(target, updates, precondition...)
	if err != nil {
		return err
	}
	return t.buffer(op)
}

// Delete buffers a Delete operation for commit.
func (t *Transaction) Delete(target resourcepath.DocumentID, precondition ...writeop.Precondition) error {
	op, err := writeop.Delete(target, precondition...)
	if err != nil {
		return err
	}
	return t.buffer(op)
}

func (t *Transaction) buffer(op writeop.Op) error {
	if t.readOnly {
		return status.New(status.InvalidArgument, "txn: writes are not permitted in a read-only transaction")
	}
	if t.state == StateCommitting || t.state == StateDone || t.state == StateFailed {
		return status.New(status.InvalidArgument, "txn: cannot write in state %s", t.state)
	}
	t.state = StateWriting
	t.writes = append(t.writes, op)
	return nil
}
