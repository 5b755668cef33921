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

import "github.com/facebookincubator/coap/coap"

// MIDAllocator hands out message IDs for one session: a random
// initial value, spec section 4.3, and a monotonic increment after
// that so two requests in flight at once never collide.
type MIDAllocator struct {
	next uint16
}

// NewMIDAllocator seeds the allocator from r so the first message ID
// a session sends is unpredictable to an off-path attacker.
func NewMIDAllocator(r coap.Rand) *MIDAllocator {
	return &MIDAllocator{next: r.Uint16()}
}

// Next returns the next message ID and advances the counter, wrapping
// from 0xFFFF back to 0.
func (a *MIDAllocator) Next() uint16 {
	mid := a.next
	a.next++
	return mid
}
