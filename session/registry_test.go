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
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := newTestSession()

	id := r.Add(s)
	assert.Equal(t, id, s.ID)

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Remove(id)
	_, ok = r.Get(id)
	assert.False(t, ok)
}

func TestRegistryCountByState(t *testing.T) {
	r := NewRegistry()
	a := newTestSession()
	b := newTestSession()
	b.SetState(Closing)

	r.Add(a)
	r.Add(b)

	counts := r.CountByState()
	assert.Equal(t, 1, counts[Established])
	assert.Equal(t, 1, counts[Closing])
}

func TestRegistryAllReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestSession())
	r.Add(newTestSession())

	assert.Len(t, r.All(), 2)
	assert.Equal(t, 2, r.Len())
}
