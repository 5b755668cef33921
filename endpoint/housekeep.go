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
	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/session"
)

// Housekeep closes idle and unresponsive sessions and caps how many
// may sit in state Established-idle or Handshake at once, spec
// section 4.3. Process calls this once per iteration; it is cheap
// enough to run unconditionally since it is a single pass over the
// registry.
func (c *Context) Housekeep(now coap.Tick) {
	idleTimeout := coap.Duration(c.cfg.SessionIdleTimeout)
	csmTimeout := coap.Duration(c.cfg.CSMTimeout)

	var idleCount, handshakeCount int
	var oldestIdle, oldestHandshake *session.Session

	for _, s := range c.registry.All() {
		switch s.State() {
		case session.Established:
			if s.Peer.Kind().Datagram() {
				// Idle means no I/O and no outstanding confirmables,
				// spec section 4.3; a session still retransmitting a
				// CON must not be closed out from under it.
				if now-s.LastActivity > idleTimeout && c.txq.CountSession(s.ID) == 0 {
					log.Debugf("endpoint: closing session %d after %s idle", s.ID, c.cfg.SessionIdleTimeout)
					c.CloseSession(s)
					continue
				}
			} else if !c.keepaliveStream(s, now) {
				continue // keepaliveStream already closed a dead session
			}
			if c.txq.CountSession(s.ID) != 0 {
				continue // an outstanding exchange means not idle
			}
			idleCount++
			if oldestIdle == nil || s.LastActivity < oldestIdle.LastActivity {
				oldestIdle = s
			}
		case session.Connecting, session.Handshake:
			if now-s.LastActivity > csmTimeout {
				log.Debugf("endpoint: aborting session %d after %s without a CSM", s.ID, c.cfg.CSMTimeout)
				c.abortSession(s)
				continue
			}
			handshakeCount++
			if oldestHandshake == nil || s.LastActivity < oldestHandshake.LastActivity {
				oldestHandshake = s
			}
		}
	}

	if c.cfg.MaxIdleSessions > 0 && idleCount > c.cfg.MaxIdleSessions && oldestIdle != nil {
		log.Debugf("endpoint: evicting session %d, idle session limit %d exceeded", oldestIdle.ID, c.cfg.MaxIdleSessions)
		c.CloseSession(oldestIdle)
	}
	if c.cfg.MaxHandshakeSessions > 0 && handshakeCount > c.cfg.MaxHandshakeSessions && oldestHandshake != nil {
		log.Debugf("endpoint: evicting session %d, handshake session limit %d exceeded", oldestHandshake.ID, c.cfg.MaxHandshakeSessions)
		c.abortSession(oldestHandshake)
	}
}

// keepaliveStream pings an Established stream session once it has
// been idle for PingTimeout, and declares it dead if a second
// PingTimeout passes with no reply. It reports false if the session
// was closed.
func (c *Context) keepaliveStream(s *session.Session, now coap.Tick) bool {
	pingTimeout := coap.Duration(c.cfg.PingTimeout)
	idle := now - s.LastActivity
	if idle <= pingTimeout {
		return true
	}
	if s.LastKeepalive <= s.LastActivity {
		c.sendMessage(s, coap.NewPing(false))
		s.LastKeepalive = now
		return true
	}
	if now-s.LastKeepalive > pingTimeout {
		log.Warningf("endpoint: session %d unresponsive to keepalive, closing", s.ID)
		c.CloseSession(s)
		return false
	}
	return true
}

// abortSession sends an ABORT signal before tearing a stream session
// down; datagram sessions have no signaling channel so they are just
// closed.
func (c *Context) abortSession(s *session.Session) {
	if !s.Peer.Kind().Datagram() {
		c.sendMessage(s, coap.NewAbort(0))
	}
	c.CloseSession(s)
}
