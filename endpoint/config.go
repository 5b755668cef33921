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
	"time"

	"github.com/facebookincubator/coap/session"
	"github.com/facebookincubator/coap/txqueue"
)

// Config configures a Context. The zero value is not usable; call
// Check before use, the same defaulting-and-panic-on-out-of-range
// pattern the part5 example's TCPConfig.check uses.
type Config struct {
	// AckTimeout, AckRandomFactor and MaxRetransmit are the RFC 7252
	// section 4.8 transmission parameters.
	AckTimeout      time.Duration
	AckRandomFactor float64
	MaxRetransmit   int

	// NStart bounds the number of simultaneous outstanding
	// confirmable exchanges per peer, RFC 7252 section 4.7.
	NStart int

	// MaxIdleSessions and MaxHandshakeSessions cap how many sessions
	// this endpoint keeps in State Established with no outstanding
	// exchange, and in State Handshake, before it starts evicting the
	// oldest to make room, spec section 4.3.
	MaxIdleSessions      int
	MaxHandshakeSessions int

	// SessionIdleTimeout is how long a session may sit with no
	// activity before the endpoint closes it.
	SessionIdleTimeout time.Duration
	// CSMTimeout bounds how long a stream session waits for the
	// peer's CSM before it is aborted.
	CSMTimeout time.Duration
	// PingTimeout bounds how long a keepalive Ping may go unanswered
	// before the session is declared dead.
	PingTimeout time.Duration

	// DedupCapacity and DedupTTL configure session.Dedup.
	DedupCapacity int
	DedupTTL      time.Duration

	// QueueSize bounds the number of entries in txqueue.Queue before
	// Send returns ErrQueueFull, spec section 6's back-pressure
	// signal.
	QueueSize int

	// OutboxLimit bounds how many datagrams may sit in one fd's
	// write-back-pressure outbox before queueSend returns ErrQueueFull
	// instead of buffering indefinitely, spec section 5.
	OutboxLimit int

	// DSCP, when non-zero, is applied to every Transport this Context
	// owns via Transport.SetDSCP.
	DSCP int

	// ImplVersion, when set, is sent as the vendor-specific CSM
	// Impl-Version option on every stream session this Context
	// originates, so a mismatch against the peer's own version can be
	// logged instead of silently ignored.
	ImplVersion string
}

// Check applies defaults for every zero-valued field and panics if an
// explicitly set field is out of range. It returns c for chaining.
func (c *Config) Check() *Config {
	if c.AckTimeout == 0 {
		c.AckTimeout = txqueue.AckTimeoutDefault
	} else if c.AckTimeout < time.Second {
		panic("endpoint: AckTimeout must be at least 1s")
	}
	if c.AckRandomFactor == 0 {
		c.AckRandomFactor = txqueue.AckRandomFactorDefault
	} else if c.AckRandomFactor < 1 {
		panic("endpoint: AckRandomFactor must be >= 1")
	}
	if c.MaxRetransmit == 0 {
		c.MaxRetransmit = txqueue.MaxRetransmitDefault
	} else if c.MaxRetransmit < 0 {
		panic("endpoint: MaxRetransmit must be >= 0")
	}
	if c.NStart == 0 {
		c.NStart = txqueue.NStartDefault
	} else if c.NStart < 1 {
		panic("endpoint: NStart must be >= 1")
	}
	if c.MaxIdleSessions == 0 {
		c.MaxIdleSessions = 256
	}
	if c.MaxHandshakeSessions == 0 {
		c.MaxHandshakeSessions = 64
	}
	if c.SessionIdleTimeout == 0 {
		c.SessionIdleTimeout = 247 * time.Second // EXCHANGE_LIFETIME
	}
	if c.CSMTimeout == 0 {
		c.CSMTimeout = 10 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 30 * time.Second
	}
	if c.DedupCapacity == 0 {
		c.DedupCapacity = session.DefaultDedupCapacity
	}
	if c.DedupTTL == 0 {
		c.DedupTTL = c.SessionIdleTimeout
	}
	if c.QueueSize == 0 {
		c.QueueSize = 1024
	} else if c.QueueSize < 0 {
		panic("endpoint: QueueSize must be >= 0")
	}
	if c.OutboxLimit == 0 {
		c.OutboxLimit = 256
	} else if c.OutboxLimit < 0 {
		panic("endpoint: OutboxLimit must be >= 0")
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		panic("endpoint: DSCP must be in [0, 63]")
	}
	return c
}
