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
	"github.com/facebookincubator/coap/txqueue"
)

// driveRetransmissions pops every queue entry due at or before now and
// either resends it with a doubled timeout or, past MaxRetransmit,
// gives up and reports txqueue.Timeout, spec section 4.2.
func (c *Context) driveRetransmissions(now coap.Tick) {
	for _, e := range c.txq.PopDue(now) {
		sess, ok := c.registry.Get(e.Key.SessionID)
		if !ok {
			continue // session closed out from under an in-flight retransmission
		}
		if e.Retries >= c.backoff.MaxRetransmit() {
			log.Debugf("endpoint: giving up on message %d for session %d after %d retries", e.Key.MessageID, sess.ID, e.Retries)
			if c.stats != nil {
				c.stats.IncTimeouts()
			}
			c.notifyNack(e, txqueue.Timeout)
			continue
		}
		e.Retries++
		if c.stats != nil {
			c.stats.IncRetransmits()
			c.stats.IncTX(e.Message.Code)
		}
		b, err := c.encode(sess, e.Message)
		if err != nil {
			log.Warningf("endpoint: re-encode for retransmit failed: %v", err)
			continue
		}
		if err := c.queueSend(sess.Peer, b, sess.Raddr); err != nil {
			log.Warningf("endpoint: retransmit send failed: %v", err)
		}
		next := c.backoff.Next(e.Timeout)
		e.FireTick = now + next
		e.Timeout = next
		if err := c.txq.Push(e); err != nil {
			log.Warningf("endpoint: re-push retransmission entry: %v", err)
		}
	}
	if c.stats != nil {
		c.stats.SetQueueDepth(int64(c.txq.Len()))
	}
}

// NextDeadline returns the tick of the earliest outstanding
// retransmission, for the scheduler's wait step to compute its
// timeout, and whether anything is outstanding at all.
func (c *Context) NextDeadline() (coap.Tick, bool) {
	e, ok := c.txq.Peek()
	if !ok {
		return 0, false
	}
	return e.FireTick, true
}
