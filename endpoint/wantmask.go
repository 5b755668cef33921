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

// Package endpoint implements the dispatch and I/O scheduling layer,
// spec section 4.4 and 4.5: request/response matching, retransmission
// drive, and the readiness-driven process(ctx, timeout) loop that
// ties coap, txqueue, session and transport together.
package endpoint

// WantMask is the set of readiness conditions a registered descriptor
// is interested in, replacing the original's four separate boolean
// flags with a single bitmask, spec section 9's redesign guidance and
// SPEC_FULL.md section D's WantMask supplement from
// original_source/include/coap2/net.h's COAP_SOCKET_* flags.
type WantMask uint8

// Readiness bits. A descriptor may want any combination; a listening
// socket wants WantAccept, a connecting TCP socket wants WantConnect,
// and an established socket wants WantRead and, only while it has
// queued output, WantWrite.
const (
	WantRead WantMask = 1 << iota
	WantWrite
	WantAccept
	WantConnect
)

// Has reports whether every bit set in other is also set in w.
func (w WantMask) Has(other WantMask) bool {
	return w&other == other
}
