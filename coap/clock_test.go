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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationRoundTrip(t *testing.T) {
	d := 2500 * time.Millisecond
	tick := Duration(d)
	assert.Equal(t, d, tick.ToDuration())
}

func TestSystemClockAdvancesMonotonically(t *testing.T) {
	c := NewSystemClock()
	a := c.Now()
	time.Sleep(2 * time.Millisecond)
	b := c.Now()
	assert.Greater(t, int64(b), int64(a))
}

func TestCryptoRandTokenLengthClampedToMaxTokenLen(t *testing.T) {
	r := CryptoRand{}
	tok := r.Token(MaxTokenLen + 4)
	assert.Len(t, tok, MaxTokenLen)
}

func TestCryptoRandTokenZeroOrNegativeIsNil(t *testing.T) {
	r := CryptoRand{}
	assert.Nil(t, r.Token(0))
	assert.Nil(t, r.Token(-1))
}

func TestCryptoRandFractionIsWithinUnitInterval(t *testing.T) {
	r := CryptoRand{}
	for i := 0; i < 100; i++ {
		f := r.Fraction()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}

func TestCryptoRandUint16VariesAcrossCalls(t *testing.T) {
	r := CryptoRand{}
	seen := map[uint16]bool{}
	for i := 0; i < 20; i++ {
		seen[r.Uint16()] = true
	}
	assert.Greater(t, len(seen), 1)
}
