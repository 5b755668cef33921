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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMIDAllocatorWrapsAroundUint16(t *testing.T) {
	rnd := &countingRand{}
	a := NewMIDAllocator(rnd)
	a.next = 0xFFFF

	last := a.Next()
	wrapped := a.Next()

	assert.Equal(t, uint16(0xFFFF), last)
	assert.Equal(t, uint16(0), wrapped)
}

func TestMIDAllocatorSeededFromRand(t *testing.T) {
	rnd := &countingRand{n: 41}
	a := NewMIDAllocator(rnd)
	assert.Equal(t, uint16(42), a.Next())
}
