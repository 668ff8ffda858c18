// Copyright 2026 The docdbio Authors. All rights reserved.
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package write

import "container/list"

// PendingQueue is the BulkWriter's ordered pending-write sequence
// (spec §4.5 "pendingQueue"). It is the same container/list-backed
// FIFO the teacher's internal/write.Queue uses for its retry buffer,
// generalized to hold *Item rather than *Batch and without the
// bounded-overwrite behavior — the BulkWriter's backpressure is the
// rate limiter and inFlightDocs, not a fixed-size ring buffer.
type PendingQueue struct {
	list *list.List
}

// NewPendingQueue returns an empty PendingQueue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{list: list.New()}
}

// PushBack enqueues item at the tail, preserving enqueue order.
func (q *PendingQueue) PushBack(item *Item) {
	q.list.PushBack(item)
}

// PushFront re-admits item at the head — used when the rate limiter
// denies a batch, so its items return to the front of the queue in
// their original order.
func (q *PendingQueue) PushFront(item *Item) {
	q.list.PushFront(item)
}

// Len returns the number of items currently queued.
func (q *PendingQueue) Len() int { return q.list.Len() }

// Take walks the queue from the front, calling accept for each item in
// order. If accept returns true the item is removed and included in
// the result; Take stops once max items have been taken or the queue
// is exhausted. This implements spec §4.5 step 2's greedy batch
// formation: "walk pendingQueue skipping any WriteOp whose DocumentId
// is in inFlightDocs".
func (q *PendingQueue) Take(max int, accept func(*Item) bool) []*Item {
	var taken []*Item
	var next *list.Element
	for e := q.list.Front(); e != nil && len(taken) < max; e = next {
		next = e.Next()
		item := e.Value.(*Item)
		if accept(item) {
			q.list.Remove(e)
			taken = append(taken, item)
		}
	}
	return taken
}

// Drain removes and returns every queued item, in order.
func (q *PendingQueue) Drain() []*Item {
	items := make([]*Item, 0, q.list.Len())
	for e := q.list.Front(); e != nil; e = e.Next() {
		items = append(items, e.Value.(*Item))
	}
	q.list.Init()
	return items
}
