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

package coap

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TicksPerSecond is the resolution of the monotonic tick source used
// throughout the scheduler and retransmission timers, spec section 2.
const TicksPerSecond = 1000

// Tick is a monotonic instant expressed in 1/TicksPerSecond units. It
// is comparable and arithmetic with plain integers, unlike time.Time,
// which keeps the send queue's ordered-by-fire-tick invariant cheap to
// maintain.
type Tick int64

// Clock is the leaf dependency every timing decision in this module
// runs through, so that tests can inject a fake clock instead of
// sleeping. The real implementation wraps time.Now().
type Clock interface {
	Now() Tick
}

// SystemClock is the production Clock, backed by time.Now().
type SystemClock struct{ epoch time.Time }

// NewSystemClock returns a Clock anchored to the current wall time so
// that the returned Tick values stay within int64 range for a very
// long time.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now implements Clock.
func (c *SystemClock) Now() Tick {
	return Tick(time.Since(c.epoch) * TicksPerSecond / time.Second)
}

// Duration converts a time.Duration to the equivalent tick count.
func Duration(d time.Duration) Tick {
	return Tick(d * TicksPerSecond / time.Second)
}

// ToDuration converts a tick count back to a time.Duration.
func (t Tick) ToDuration() time.Duration {
	return time.Duration(t) * time.Second / TicksPerSecond
}

// Rand is the unpredictable source for message IDs, tokens and
// retransmission jitter, spec section 2. A cryptographically secure
// source is mandatory: a predictable message ID lets an off-path
// attacker inject a matching RST or spoofed ACK.
type Rand interface {
	// Uint16 returns a value in [0, 1<<16).
	Uint16() uint16
	// Token returns n cryptographically random bytes, n in [0, 8].
	Token(n int) []byte
	// Fraction returns a uniform sample in [0, 1) as a fixed-point
	// fraction (53 bits of precision in CryptoRand), used for the
	// ACK_RANDOM_FACTOR jitter calculation in spec section 4.2.
	Fraction() float64
}

// CryptoRand is the production Rand, backed by crypto/rand.
type CryptoRand struct{}

// Uint16 implements Rand.
func (CryptoRand) Uint16() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

// Token implements Rand.
func (CryptoRand) Token(n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > MaxTokenLen {
		n = MaxTokenLen
	}
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// fractionDenom is 2^53, the largest power of two exactly
// representable in a float64 mantissa.
const fractionDenom = 1 << 53

// Fraction implements Rand.
func (CryptoRand) Fraction() float64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	// keep the top 53 bits so the result is exactly representable as a
	// float64 mantissa, then normalize to [0, 1).
	return float64(binary.BigEndian.Uint64(b[:])>>11) / fractionDenom
}
