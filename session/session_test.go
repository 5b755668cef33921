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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/coap/coap"
)

type fakeClock struct{ now coap.Tick }

func (c fakeClock) Now() coap.Tick { return c.now }

type countingRand struct{ n uint16 }

func (r *countingRand) Uint16() uint16 {
	r.n++
	return r.n
}
func (r *countingRand) Token(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.n)
	}
	r.n++
	return b
}
func (r *countingRand) Fraction() float64 { return 0.5 }

func newTestSession() *Session {
	rnd := &countingRand{}
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}
	return New(0, nil, raddr, fakeClock{now: 0}, rnd, 4, 1000)
}

func TestSessionStartsEstablished(t *testing.T) {
	s := newTestSession()
	assert.Equal(t, Established, s.State())
}

func TestSessionXIDIsUniquePerSession(t *testing.T) {
	a := newTestSession()
	b := newTestSession()
	assert.NotEqual(t, a.XID, b.XID)
	assert.False(t, a.XID.IsNil())
}

func TestSessionNextMessageIDMonotonic(t *testing.T) {
	s := newTestSession()
	a := s.NextMessageID()
	b := s.NextMessageID()
	assert.Equal(t, a+1, b)
}

func TestSessionTokenCorrelation(t *testing.T) {
	s := newTestSession()
	mid := s.NextMessageID()
	tok := s.NewToken(4, mid)

	gotMID, ok := s.OpenMessageID(tok)
	require.True(t, ok)
	assert.Equal(t, mid, gotMID)

	s.CloseToken(tok)
	_, ok = s.OpenMessageID(tok)
	assert.False(t, ok)
}

func TestSessionOpenTokensListsOutstanding(t *testing.T) {
	s := newTestSession()
	tok1 := s.NewToken(2, 1)
	tok2 := s.NewToken(2, 2)

	open := s.OpenTokens()
	assert.Len(t, open, 2)
	_ = tok1
	_ = tok2
}

// collidingThenRand yields a fixed first token, then falls back to
// countingRand, to exercise NewToken's retry-on-collision path.
type collidingThenRand struct {
	countingRand
	first []byte
	used  bool
}

func (r *collidingThenRand) Token(n int) []byte {
	if !r.used {
		r.used = true
		return r.first
	}
	return r.countingRand.Token(n)
}

func TestSessionReserveTokenExcludesFromOpenTokensAndNewToken(t *testing.T) {
	reserved := []byte{0xAA, 0xAA}
	rnd := &collidingThenRand{first: reserved}
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683}
	s := New(0, nil, raddr, fakeClock{now: 0}, rnd, 4, 1000)

	require.True(t, s.ReserveToken(reserved))
	assert.True(t, s.IsReserved(reserved))

	// NewToken's rand source first offers the reserved token; NewToken
	// must retry instead of handing it out.
	tok := s.NewToken(2, 1)
	assert.NotEqual(t, reserved, tok)

	open := s.OpenTokens()
	require.Len(t, open, 1)
	assert.Equal(t, tok, open[0])

	s.ReleaseToken(reserved)
	assert.False(t, s.IsReserved(reserved))
}

func TestSessionReserveTokenRejectsDuplicate(t *testing.T) {
	s := newTestSession()
	mid := s.NextMessageID()
	tok := s.NewToken(4, mid)

	assert.False(t, s.ReserveToken(tok))
}

func TestSessionReceiveCSMDefaultsMaxMessageSize(t *testing.T) {
	s := newTestSession()
	assert.False(t, s.CSMReceived())

	s.ReceiveCSM(0, true)
	assert.True(t, s.CSMReceived())
	assert.Equal(t, uint32(coap.DefaultMTU), s.PeerMaxMessageSize)
	assert.True(t, s.PeerBlockWise)
}
