/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package txqueue

import (
	"container/heap"
	"errors"

	"github.com/facebookincubator/coap/coap"
)

// ErrDuplicateKey is returned by Push when an entry with the same Key
// is already queued. The caller should have matched the incoming ACK
// or resend against the existing entry instead of pushing a new one.
var ErrDuplicateKey = errors.New("txqueue: duplicate key")

// Key identifies an outstanding confirmable exchange: a session and
// the message ID it sent, spec section 3.
type Key struct {
	SessionID uint64
	MessageID uint16
}

// Entry is one outstanding confirmable transmission, spec section 3's
// "Queue entry". Key, Token and Message are immutable after Push.
// Reschedule updates FireTick and Timeout in place; Retries, and the
// other two on an entry PopDue has removed, are set by the caller.
type Entry struct {
	Key     Key
	Token   []byte
	Message *coap.Message

	// FireTick is the tick at which this entry is next due for
	// retransmission or, once Retries == MaxRetransmit, for final
	// timeout.
	FireTick coap.Tick
	// Timeout is the duration used to compute the most recent
	// FireTick, kept so the next retry can double it (Backoff.Next).
	Timeout coap.Tick
	// Retries counts completed retransmissions, 0 on first send.
	Retries int

	index int // maintained by container/heap, do not set directly
}

// entryHeap is a binary heap ordered by FireTick ascending, replacing
// the original's intrusive linked list per the guidance to use an
// ordered container indexed by fire-tick with O(log n) insert and
// O(1) peek.
type entryHeap []*Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].FireTick < h[j].FireTick }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the time-ordered retransmission queue, spec section 3 and
// section 4.2. It is not safe for concurrent use; callers serialize
// access the same way the rest of the per-session state is serialized
// through the single-threaded I/O loop, spec section 4.5.
type Queue struct {
	heap  entryHeap
	byKey map[Key]*Entry
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{byKey: make(map[Key]*Entry)}
}

// Len returns the number of outstanding entries.
func (q *Queue) Len() int {
	return len(q.heap)
}

// Push adds an entry to the queue. It returns ErrDuplicateKey if an
// entry with the same Key is already present.
func (q *Queue) Push(e *Entry) error {
	if _, ok := q.byKey[e.Key]; ok {
		return ErrDuplicateKey
	}
	q.byKey[e.Key] = e
	heap.Push(&q.heap, e)
	return nil
}

// Peek returns the entry with the smallest FireTick without removing
// it, and whether the queue is non-empty.
func (q *Queue) Peek() (*Entry, bool) {
	if len(q.heap) == 0 {
		return nil, false
	}
	return q.heap[0], true
}

// PopDue removes and returns every entry whose FireTick is at or
// before now, in ascending FireTick order. The scheduler's process
// loop calls this once per iteration to drive retransmissions, spec
// section 4.5.
func (q *Queue) PopDue(now coap.Tick) []*Entry {
	var due []*Entry
	for len(q.heap) > 0 && q.heap[0].FireTick <= now {
		e := heap.Pop(&q.heap).(*Entry)
		delete(q.byKey, e.Key)
		due = append(due, e)
	}
	return due
}

// Get returns the entry for key without removing it.
func (q *Queue) Get(key Key) (*Entry, bool) {
	e, ok := q.byKey[key]
	return e, ok
}

// Remove removes and returns the entry for key, for example when an
// ACK or RST arrives and matches an outstanding CON, spec section
// 4.2's "ACK/RST matching".
func (q *Queue) Remove(key Key) (*Entry, bool) {
	e, ok := q.byKey[key]
	if !ok {
		return nil, false
	}
	delete(q.byKey, key)
	heap.Remove(&q.heap, e.index)
	return e, true
}

// CountSession reports the number of outstanding entries belonging to
// sessionID, for enforcing NStart (RFC 7252 section 4.7).
func (q *Queue) CountSession(sessionID uint64) int {
	n := 0
	for key := range q.byKey {
		if key.SessionID == sessionID {
			n++
		}
	}
	return n
}

// RemoveSession removes and returns every entry belonging to
// sessionID, for session teardown, spec section 4.3's session
// lifecycle.
func (q *Queue) RemoveSession(sessionID uint64) []*Entry {
	var removed []*Entry
	for key, e := range q.byKey {
		if key.SessionID != sessionID {
			continue
		}
		delete(q.byKey, key)
		heap.Remove(&q.heap, e.index)
		removed = append(removed, e)
	}
	return removed
}

// Reschedule advances an entry still in the queue to a new FireTick
// and Timeout, for example after a retransmission, preserving the
// heap invariant in O(log n).
func (q *Queue) Reschedule(e *Entry, fireTick, timeout coap.Tick) {
	e.FireTick = fireTick
	e.Timeout = timeout
	heap.Fix(&q.heap, e.index)
}
