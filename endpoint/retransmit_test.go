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

func TestDriveRetransmissionsResendsBeforeGivingUp(t *testing.T) {
	c, clock := newTestContext(nil)
	c.backoff = txqueue.NewBackoff(time.Second, 1, 2) // deterministic: no jitter window, gives up after 2 retries
	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	sess := c.sessionFor(peer, raddr)

	var nacks int
	req := &coap.Message{Type: coap.CON, Code: coap.GET}
	require.NoError(t, c.Send(sess, req, nil, func(e *txqueue.Entry, reason txqueue.Reason) {
		nacks++
	}))
	require.Len(t, peer.sent, 1)

	deadline, ok := c.NextDeadline()
	require.True(t, ok)

	clock.now = deadline
	c.driveRetransmissions(clock.now)
	assert.Len(t, peer.sent, 2, "first retry resends")
	assert.Equal(t, 0, nacks)

	deadline2, ok := c.NextDeadline()
	require.True(t, ok)
	clock.now = deadline2
	c.driveRetransmissions(clock.now)
	assert.Len(t, peer.sent, 3, "second retry resends")
	assert.Equal(t, 0, nacks)

	deadline3, ok := c.NextDeadline()
	require.True(t, ok)
	clock.now = deadline3
	c.driveRetransmissions(clock.now)
	assert.Len(t, peer.sent, 3, "third due tick gives up instead of resending")
	assert.Equal(t, 1, nacks)
	assert.Equal(t, 0, c.txq.Len())
}

func TestDriveRetransmissionsSkipsClosedSession(t *testing.T) {
	c, clock := newTestContext(nil)
	peer := newFakeUDP(3)
	raddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	sess := c.sessionFor(peer, raddr)

	req := &coap.Message{Type: coap.CON, Code: coap.GET}
	require.NoError(t, c.Send(sess, req, nil, nil))

	// Directly evict the session from the registry without going
	// through CloseSession, to exercise the entry's "session vanished
	// out from under an in-flight retransmission" guard in isolation.
	c.registry.Remove(sess.ID)

	deadline, ok := c.NextDeadline()
	require.True(t, ok)
	clock.now = deadline

	assert.NotPanics(t, func() { c.driveRetransmissions(clock.now) })
}

func TestNextDeadlineReportsFalseWhenQueueEmpty(t *testing.T) {
	c, _ := newTestContext(nil)
	_, ok := c.NextDeadline()
	assert.False(t, ok)
}
