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
	"time"

	"github.com/facebookincubator/coap/coap"
)

// Defaults from spec section 4.2, matching RFC 7252 section 4.8's
// transmission parameters.
const (
	AckTimeoutDefault      = 2 * time.Second
	AckRandomFactorDefault = 1.5
	MaxRetransmitDefault   = 4
	NStartDefault          = 1
)

// Backoff holds the transmission parameters that govern a confirmable
// message's retry schedule, spec section 4.2. The zero value is not
// usable; use NewBackoff.
type Backoff struct {
	ackTimeout      coap.Tick
	ackRandomFactor float64
	maxRetransmit   int
}

// NewBackoff builds a Backoff, defaulting any zero-valued field to the
// RFC 7252 transmission parameters, the same defaulting pattern
// endpoint.Config.Check uses elsewhere in this module.
func NewBackoff(ackTimeout time.Duration, ackRandomFactor float64, maxRetransmit int) Backoff {
	if ackTimeout <= 0 {
		ackTimeout = AckTimeoutDefault
	}
	if ackRandomFactor < 1 {
		ackRandomFactor = AckRandomFactorDefault
	}
	if maxRetransmit <= 0 {
		maxRetransmit = MaxRetransmitDefault
	}
	return Backoff{
		ackTimeout:      coap.Duration(ackTimeout),
		ackRandomFactor: ackRandomFactor,
		maxRetransmit:   maxRetransmit,
	}
}

// MaxRetransmit returns the configured retry ceiling.
func (b Backoff) MaxRetransmit() int {
	return b.maxRetransmit
}

// Initial returns the jittered timeout for the first transmission:
// ACK_TIMEOUT * (1 + (ACK_RANDOM_FACTOR - 1) * r), r uniform in [0, 1),
// spec section 4.2.
func (b Backoff) Initial(r coap.Rand) coap.Tick {
	jitter := 1 + (b.ackRandomFactor-1)*r.Fraction()
	return coap.Tick(float64(b.ackTimeout) * jitter)
}

// Next doubles the previous timeout, the exponential part of the
// backoff, spec section 4.2.
func (b Backoff) Next(previous coap.Tick) coap.Tick {
	return previous * 2
}
