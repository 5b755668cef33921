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

	deep "github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagramRoundTrip(t *testing.T) {
	cases := []*Message{
		{Type: CON, Code: GET, MessageID: 0x1234, Token: []byte{0xAB}},
		{Type: ACK, Code: Content, MessageID: 0x1234, Token: []byte{0xAB}, Payload: []byte("hi")},
		{Type: NON, Code: GET, MessageID: 1, Token: []byte{}},
		{Type: CON, Code: GET, MessageID: 2, Token: make([]byte, MaxTokenLen)},
		{Type: RST, Code: Empty, MessageID: 3},
		{
			Type: CON, Code: GET, MessageID: 0xFFFF, Token: []byte{1, 2, 3, 4, 5, 6, 7, 8},
			Options: Options{}.Add(OptionURIPath, []byte("a")).Add(65535, []byte{9}).Add(OptionURIPath, []byte("long-path-segment-needs-extension")),
			Payload: []byte{0x01, 0x02, 0x03},
		},
	}

	for _, m := range cases {
		buf, err := MarshalDatagram(nil, m)
		require.NoError(t, err)

		got, err := UnmarshalDatagram(buf)
		require.NoError(t, err)

		assert.Equal(t, m.Type, got.Type)
		assert.Equal(t, m.Code, got.Code)
		assert.Equal(t, m.MessageID, got.MessageID)
		assert.Equal(t, len(m.Token), len(got.Token))
		assert.Equal(t, m.Payload, got.Payload)
		assert.Equal(t, len(m.Options), len(got.Options))

		// re-encoding a decoded, already-canonical message must be
		// byte identical, spec section 8's algebraic law.
		again, err := MarshalDatagram(nil, got)
		require.NoError(t, err)
		assert.Equal(t, buf, again)
	}
}

func TestDatagramRoundTripPreservesOptionValues(t *testing.T) {
	want := Options{}.Add(OptionURIPath, []byte("a")).Add(65535, []byte{9}).Add(OptionURIPath, []byte("long-path-segment-needs-extension"))
	m := &Message{Type: CON, Code: GET, MessageID: 1, Token: []byte{0xAB}, Options: want}

	buf, err := MarshalDatagram(nil, m)
	require.NoError(t, err)
	got, err := UnmarshalDatagram(buf)
	require.NoError(t, err)

	if diff := deep.Equal([]Option(want), []Option(got.Options)); diff != nil {
		t.Errorf("decoded options differ from the originals: %v", diff)
	}
}

func TestDatagramTokenBoundaries(t *testing.T) {
	for _, tkl := range []int{0, MaxTokenLen} {
		m := &Message{Type: CON, Code: GET, MessageID: 1, Token: make([]byte, tkl)}
		buf, err := MarshalDatagram(nil, m)
		require.NoError(t, err)
		got, err := UnmarshalDatagram(buf)
		require.NoError(t, err)
		assert.Len(t, got.Token, tkl)
	}

	_, err := MarshalDatagram(nil, &Message{Token: make([]byte, MaxTokenLen+1)})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDatagramPayloadMarkerNoPayload(t *testing.T) {
	// a message that ends right at the 0xFF marker with zero payload
	// bytes must be rejected, spec section 8's boundary case.
	buf := []byte{datagramHeaderByte0(Version, CON, 0), byte(GET), 0x00, 0x01, 0xFF}
	_, err := UnmarshalDatagram(buf)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDatagramTruncated(t *testing.T) {
	_, err := UnmarshalDatagram([]byte{0x40, 0x01, 0x00})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDatagramReservedTokenLength(t *testing.T) {
	buf := []byte{datagramHeaderByte0(Version, CON, 9), byte(GET), 0x00, 0x01}
	_, err := UnmarshalDatagram(buf)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestCodeClassDetail(t *testing.T) {
	c := NewCode(2, 5)
	assert.Equal(t, uint8(2), c.Class())
	assert.Equal(t, uint8(5), c.Detail())
	assert.Equal(t, "2.05", c.String())
	assert.True(t, c.IsResponse())
	assert.False(t, c.IsRequest())
}
