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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/facebookincubator/coap/coap"
)

// fixedRand is a deterministic coap.Rand for tests, avoiding any
// dependency on crypto/rand's actual output.
type fixedRand struct {
	fraction float64
}

func (r fixedRand) Uint16() uint16    { return 0 }
func (r fixedRand) Token(n int) []byte { return make([]byte, n) }
func (r fixedRand) Fraction() float64  { return r.fraction }

func TestBackoffInitialAtZeroJitterEqualsAckTimeout(t *testing.T) {
	b := NewBackoff(AckTimeoutDefault, AckRandomFactorDefault, MaxRetransmitDefault)
	got := b.Initial(fixedRand{fraction: 0})
	assert.Equal(t, coap.Duration(AckTimeoutDefault), got)
}

func TestBackoffInitialAtMaxJitterEqualsAckTimeoutTimesFactor(t *testing.T) {
	b := NewBackoff(AckTimeoutDefault, AckRandomFactorDefault, MaxRetransmitDefault)
	got := b.Initial(fixedRand{fraction: 1})
	want := coap.Duration(time.Duration(float64(AckTimeoutDefault) * AckRandomFactorDefault))
	assert.InDelta(t, float64(want), float64(got), 1)
}

func TestBackoffNextDoublesPreviousTimeout(t *testing.T) {
	b := NewBackoff(AckTimeoutDefault, AckRandomFactorDefault, MaxRetransmitDefault)
	first := coap.Duration(AckTimeoutDefault)
	assert.Equal(t, first*2, b.Next(first))
	assert.Equal(t, first*4, b.Next(b.Next(first)))
}

func TestNewBackoffDefaultsZeroValues(t *testing.T) {
	b := NewBackoff(0, 0, 0)
	assert.Equal(t, MaxRetransmitDefault, b.MaxRetransmit())
	assert.Equal(t, coap.Duration(AckTimeoutDefault), b.ackTimeout)
	assert.Equal(t, AckRandomFactorDefault, b.ackRandomFactor)
}
