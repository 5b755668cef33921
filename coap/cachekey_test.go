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

	"github.com/stretchr/testify/assert"
)

func req(opts Options) *Message {
	return &Message{Code: GET, Options: opts}
}

func TestCacheKeyStableUnderQueryReorder(t *testing.T) {
	a := req(Options{}.Add(OptionURIPath, []byte("x")).
		Add(OptionURIQuery, []byte("a=1")).
		Add(OptionURIQuery, []byte("b=2")))
	b := req(Options{}.Add(OptionURIPath, []byte("x")).
		Add(OptionURIQuery, []byte("b=2")).
		Add(OptionURIQuery, []byte("a=1")))

	assert.Equal(t, Cache(a, nil), Cache(b, nil))
}

func TestCacheKeyIgnoresConfiguredOptions(t *testing.T) {
	ignore := NewKnownOptionsFilter(OptionContentFormat)

	withFormat := req(Options{}.Add(OptionURIPath, []byte("x")).Add(OptionContentFormat, []byte{60}))
	withoutFormat := req(Options{}.Add(OptionURIPath, []byte("x")))

	assert.Equal(t, Cache(withFormat, ignore), Cache(withoutFormat, ignore))
	assert.NotEqual(t, Cache(withFormat, nil), Cache(withoutFormat, nil))
}

func TestCacheKeyDiffersOnPath(t *testing.T) {
	a := req(Options{}.Add(OptionURIPath, []byte("x")))
	b := req(Options{}.Add(OptionURIPath, []byte("y")))
	assert.NotEqual(t, Cache(a, nil), Cache(b, nil))
}
