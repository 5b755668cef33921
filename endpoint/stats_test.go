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

package endpoint

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/txqueue"
)

// stubStats is a minimal stats.Stats recorder for asserting which
// counters a code path touches, without pulling in the real
// atomic/mutex-guarded implementation.
type stubStats struct {
	rx, tx                          map[coap.Code]int
	sessionsOpened, sessionsClosed  int
	retransmits, timeouts, resets   int
	dedupHits, dedupMisses          int
	queueDepth, sessionCount        int64
	rttSamples                      []float64
}

func newStubStats() *stubStats {
	return &stubStats{rx: map[coap.Code]int{}, tx: map[coap.Code]int{}}
}

func (s *stubStats) Start(string)               {}
func (s *stubStats) Snapshot()                  {}
func (s *stubStats) Reset()                     {}
func (s *stubStats) IncRX(c coap.Code)          { s.rx[c]++ }
func (s *stubStats) IncTX(c coap.Code)          { s.tx[c]++ }
func (s *stubStats) IncSessionsOpened()         { s.sessionsOpened++ }
func (s *stubStats) IncSessionsClosed()         { s.sessionsClosed++ }
func (s *stubStats) IncRetransmits()            { s.retransmits++ }
func (s *stubStats) IncTimeouts()               { s.timeouts++ }
func (s *stubStats) IncResets()                 { s.resets++ }
func (s *stubStats) IncDedupHits()              { s.dedupHits++ }
func (s *stubStats) IncDedupMisses()            { s.dedupMisses++ }
func (s *stubStats) SetQueueDepth(d int64)      { s.queueDepth = d }
func (s *stubStats) SetSessionCount(n int64)    { s.sessionCount = n }
func (s *stubStats) ObserveRTT(ns float64)      { s.rttSamples = append(s.rttSamples, ns) }

func TestStatsCountsSessionsRequestsAndResponses(t *testing.T) {
	c, _ := newTestContext(nil)
	st := newStubStats()
	c.SetStats(st)

	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}

	req, err := coap.MarshalDatagram(nil, &coap.Message{Type: coap.CON, Code: coap.GET, MessageID: 1, Token: []byte{1}})
	require.NoError(t, err)
	c.DeliverDatagram(peer, raddr, req)

	assert.Equal(t, 1, st.sessionsOpened)
	assert.Equal(t, 1, st.rx[coap.GET])
	assert.Equal(t, 1, st.tx[coap.Content])
}

func TestStatsCountsDedupHitAndMiss(t *testing.T) {
	c, clock := newTestContext(nil)
	st := newStubStats()
	c.SetStats(st)

	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	req, err := coap.MarshalDatagram(nil, &coap.Message{Type: coap.CON, Code: coap.GET, MessageID: 1, Token: []byte{1}})
	require.NoError(t, err)

	c.DeliverDatagram(peer, raddr, req)
	assert.Equal(t, 1, st.dedupMisses)
	assert.Equal(t, 0, st.dedupHits)

	clock.now += 5
	c.DeliverDatagram(peer, raddr, req)
	assert.Equal(t, 1, st.dedupMisses)
	assert.Equal(t, 1, st.dedupHits)
}

func TestStatsCountsResetAndRTTOnRst(t *testing.T) {
	c, _ := newTestContext(nil)
	st := newStubStats()
	c.SetStats(st)

	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	sess := c.sessionFor(peer, raddr)

	req := &coap.Message{Type: coap.CON, Code: coap.GET}
	require.NoError(t, c.Send(sess, req, nil, func(*txqueue.Entry, txqueue.Reason) {}))
	assert.Equal(t, 1, st.tx[coap.GET])

	rst := &coap.Message{Type: coap.RST, Code: coap.Empty, MessageID: req.MessageID}
	buf, err := coap.MarshalDatagram(nil, rst)
	require.NoError(t, err)
	c.DeliverDatagram(peer, raddr, buf)

	assert.Equal(t, 1, st.resets)
	require.Len(t, st.rttSamples, 1)
	assert.GreaterOrEqual(t, st.rttSamples[0], float64(0))
}

func TestStatsCountsSessionClosed(t *testing.T) {
	c, _ := newTestContext(nil)
	st := newStubStats()
	c.SetStats(st)

	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	sess := c.sessionFor(peer, raddr)
	assert.Equal(t, 1, st.sessionsOpened)

	c.CloseSession(sess)
	assert.Equal(t, 1, st.sessionsClosed)
}

func TestStatsCountsRetransmitsAndTimeout(t *testing.T) {
	c, clock := newTestContext(nil)
	st := newStubStats()
	c.SetStats(st)
	c.backoff = txqueue.NewBackoff(time.Second, 1, 1) // give up after 1 retry

	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	sess := c.sessionFor(peer, raddr)

	req := &coap.Message{Type: coap.CON, Code: coap.GET}
	require.NoError(t, c.Send(sess, req, nil, nil))

	deadline, ok := c.NextDeadline()
	require.True(t, ok)
	clock.now = deadline
	c.driveRetransmissions(clock.now)
	assert.Equal(t, 1, st.retransmits)

	deadline2, ok := c.NextDeadline()
	require.True(t, ok)
	clock.now = deadline2
	c.driveRetransmissions(clock.now)
	assert.Equal(t, 1, st.timeouts)
	assert.Equal(t, int64(0), st.queueDepth)
}
