// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package write

import (
	"container/heap"
	"sync/atomic"
	"time"

	"github.com/docdbio/admin-go/backoff"
	"github.com/docdbio/admin-go/resourcepath"
	"github.com/docdbio/admin-go/writeop"
)

// Item is one write operation in flight through the BulkWriter's
// pending or retry queues: the operation itself, its caller-facing
// Future, a per-chain backoff scheduler, and the failed-attempt
// counter spec §3 requires to start at 1 on first failure.
type Item struct {
	Op            writeop.Op
	Target        resourcepath.DocumentID
	Future        *Future
	Backoff       *backoff.Scheduler
	FailedAttempts int
	// ReadyAt is when this item becomes eligible to re-enter the
	// pending queue; zero for items that have never failed.
	ReadyAt time.Time
	// enqueuedAt is the original enqueue order, preserved across
	// retries so that admitted retries keep their original
	// per-document ordering (spec §4.5 step 1).
	enqueuedAt int64
}

var itemSeq int64

// NewItem builds an Item for op, stamping it with the next enqueue
// sequence number so that retries admitted at the same ReadyAt instant
// still break ties in original enqueue order.
func NewItem(op writeop.Op, future *Future, sched *backoff.Scheduler) *Item {
	return &Item{
		Op:         op,
		Target:     op.Target(),
		Future:     future,
		Backoff:    sched,
		enqueuedAt: atomic.AddInt64(&itemSeq, 1),
	}
}

// RetryHeap is the min-heap keyed by ReadyAt described in spec §4.5.
// It is not safe for concurrent use — the BulkWriter's scheduling
// loop is single-threaded cooperative (spec §5).
type RetryHeap struct {
	items retryHeapSlice
}

// NewRetryHeap returns an empty RetryHeap.
func NewRetryHeap() *RetryHeap {
	return &RetryHeap{items: retryHeapSlice{}}
}

// Push inserts item into the heap.
func (h *RetryHeap) Push(item *Item) {
	heap.Push(&h.items, item)
}

// Len returns the number of items currently held.
func (h *RetryHeap) Len() int { return h.items.Len() }

// PeekReadyAt returns the ReadyAt of the earliest item, and false if
// the heap is empty — useful for scheduling the scheduling loop's next
// wake-up.
func (h *RetryHeap) PeekReadyAt() (time.Time, bool) {
	if h.items.Len() == 0 {
		return time.Time{}, false
	}
	return h.items[0].ReadyAt, true
}

// DrainReady pops and returns every item whose ReadyAt is at or before
// now, in ReadyAt order.
func (h *RetryHeap) DrainReady(now time.Time) []*Item {
	var ready []*Item
	for h.items.Len() > 0 && !h.items[0].ReadyAt.After(now) {
		ready = append(ready, heap.Pop(&h.items).(*Item))
	}
	return ready
}

type retryHeapSlice []*Item

func (s retryHeapSlice) Len() int { return len(s) }
func (s retryHeapSlice) Less(i, j int) bool {
	if s[i].ReadyAt.Equal(s[j].ReadyAt) {
		return s[i].enqueuedAt < s[j].enqueuedAt
	}
	return s[i].ReadyAt.Before(s[j].ReadyAt)
}
func (s retryHeapSlice) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *retryHeapSlice) Push(x interface{}) {
	*s = append(*s, x.(*Item))
}

func (s *retryHeapSlice) Pop() interface{} {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}
