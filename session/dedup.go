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

package session

import (
	"container/list"

	"github.com/facebookincubator/coap/coap"
)

// DefaultDedupCapacity bounds how many recent exchanges a session
// remembers for retransmission deduplication. Spec section 9 leaves
// the exact figure an open question; 16 covers NSTART=1's worst case
// with a comfortable margin for a peer that retransmits its last few
// confirmable requests before giving up.
const DefaultDedupCapacity = 16

// dedupEntry is one remembered (peer message ID, cached response)
// pair, spec section 4.4's "dedup resend" step.
type dedupEntry struct {
	mid      uint16
	response *coap.Message
	expires  coap.Tick
}

// Dedup is a bounded, TTL-aware cache from an inbound confirmable
// message ID to the response it produced, so a retransmitted request
// gets the cached response resent instead of being processed twice,
// RFC 7252 section 4.5. It evicts by least-recently-used once its
// capacity (DefaultDedupCapacity unless NewDedup is given a positive
// one) is exceeded, and lazily drops entries whose TTL
// has elapsed on lookup.
type Dedup struct {
	capacity int
	ttl      coap.Tick
	ll       *list.List
	index    map[uint16]*list.Element
}

// NewDedup returns a Dedup holding at most capacity entries, each
// valid for ttl after insertion. ttl should be at least
// EXCHANGE_LIFETIME so a very late retransmission still finds its
// cached response, spec section 4.2.
func NewDedup(capacity int, ttl coap.Tick) *Dedup {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Dedup{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[uint16]*list.Element),
	}
}

// Put remembers response as the answer to inbound message id mid as
// of now, evicting the least-recently-used entry if the cache is full.
func (d *Dedup) Put(mid uint16, response *coap.Message, now coap.Tick) {
	if el, ok := d.index[mid]; ok {
		d.ll.MoveToFront(el)
		e := el.Value.(*dedupEntry)
		e.response = response
		e.expires = now + d.ttl
		return
	}
	e := &dedupEntry{mid: mid, response: response, expires: now + d.ttl}
	el := d.ll.PushFront(e)
	d.index[mid] = el
	if d.ll.Len() > d.capacity {
		oldest := d.ll.Back()
		if oldest != nil {
			d.ll.Remove(oldest)
			delete(d.index, oldest.Value.(*dedupEntry).mid)
		}
	}
}

// Get returns the cached response for mid, if any and not yet
// expired as of now.
func (d *Dedup) Get(mid uint16, now coap.Tick) (*coap.Message, bool) {
	el, ok := d.index[mid]
	if !ok {
		return nil, false
	}
	e := el.Value.(*dedupEntry)
	if now >= e.expires {
		d.ll.Remove(el)
		delete(d.index, mid)
		return nil, false
	}
	d.ll.MoveToFront(el)
	return e.response, true
}

// Len reports the number of live entries, including ones that have
// expired but have not yet been looked up or evicted.
func (d *Dedup) Len() int {
	return d.ll.Len()
}
