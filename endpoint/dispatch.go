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
	"encoding/hex"
	"net"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/session"
	"github.com/facebookincubator/coap/transport"
	"github.com/facebookincubator/coap/txqueue"
)

// Send transmits req on behalf of sess, assigning a message ID (and,
// for requests, a token) if unset. For a Confirmable message it is
// enqueued in the retransmission queue; onResponse and onNack, if
// non-nil, are invoked when a matching reply or a give-up arrives.
func (c *Context) Send(sess *session.Session, req *coap.Message, onResponse ResponseHandler, onNack NackHandler) error {
	if req.MessageID == 0 && sess.Peer.Kind().Datagram() {
		req.MessageID = sess.NextMessageID()
	}
	if req.Code.IsRequest() && len(req.Token) == 0 {
		req.Token = sess.NewToken(8, req.MessageID)
	}

	if req.Type == coap.CON && c.txq.CountSession(sess.ID) >= c.cfg.NStart {
		return ErrNStartExceeded
	}

	b, err := c.encode(sess, req)
	if err != nil {
		return err
	}
	if c.cfg.QueueSize > 0 && req.Type == coap.CON && c.txq.Len() >= c.cfg.QueueSize {
		return ErrQueueFull
	}

	if coap.Trace {
		log.Debugf("endpoint: send to session %d: %s", sess.ID, req.String())
	}
	if c.stats != nil {
		c.stats.IncTX(req.Code)
	}
	if err := c.queueSend(sess.Peer, b, sess.Raddr); err != nil {
		return err
	}

	if len(req.Token) > 0 && (onResponse != nil || onNack != nil) {
		c.pending[pendingKey{sessionID: sess.ID, token: hex.EncodeToString(req.Token)}] = &pendingRequest{onResponse: onResponse, onNack: onNack}
	}

	if req.Type == coap.CON {
		timeout := c.backoff.Initial(c.rand)
		entry := &txqueue.Entry{
			Key:      txqueue.Key{SessionID: sess.ID, MessageID: req.MessageID},
			Token:    req.Token,
			Message:  req,
			FireTick: c.clock.Now() + timeout,
			Timeout:  timeout,
		}
		if err := c.txq.Push(entry); err != nil {
			log.Warningf("endpoint: duplicate message id %d for session %d", req.MessageID, sess.ID)
		}
	}
	return nil
}

func (c *Context) encode(sess *session.Session, m *coap.Message) ([]byte, error) {
	if sess.Peer.Kind().Datagram() {
		return coap.MarshalDatagram(nil, m)
	}
	return coap.MarshalStream(nil, m)
}

// sendMessage encodes and queues m on sess's peer, counting it as a
// transmitted message. Encode failures are logged and swallowed, the
// same policy every call site used before this helper existed.
func (c *Context) sendMessage(sess *session.Session, m *coap.Message) {
	b, err := c.encode(sess, m)
	if err != nil {
		log.Warningf("endpoint: encode for session %d failed: %v", sess.ID, err)
		return
	}
	if c.stats != nil {
		c.stats.IncTX(m.Code)
	}
	if err := c.queueSend(sess.Peer, b, sess.Raddr); err != nil {
		log.Warningf("endpoint: send to session %d failed: %v", sess.ID, err)
	}
}

// DeliverDatagram processes one decoded inbound datagram message from
// raddr on Transport t, spec section 4.4's dispatch steps.
func (c *Context) DeliverDatagram(t transport.Transport, raddr net.Addr, buf []byte) {
	m, err := coap.UnmarshalDatagram(buf)
	if err != nil {
		log.Debugf("endpoint: malformed datagram from %s: %v", raddr, err)
		return
	}
	sess := c.sessionFor(t, raddr)
	c.dispatch(sess, m)
}

// DeliverStreamBytes feeds newly-read bytes from a stream Transport's
// session into the RFC 8323 frame parser, dispatching every complete
// frame it finds. It returns the number of bytes consumed; the caller
// must keep any remainder for the next read.
func (c *Context) DeliverStreamBytes(sess *session.Session, buf []byte) int {
	total := 0
	for {
		m, consumed, err := coap.ParseStreamFrame(buf[total:])
		if err != nil {
			log.Debugf("endpoint: malformed stream frame from session %d: %v", sess.ID, err)
			c.CloseSession(sess)
			return len(buf)
		}
		if m == nil {
			return total
		}
		total += consumed
		c.dispatch(sess, m)
	}
}

func (c *Context) dispatch(sess *session.Session, m *coap.Message) {
	sess.Touch(c.clock.Now())
	if c.stats != nil {
		c.stats.IncRX(m.Code)
	}
	if coap.Trace {
		log.Debugf("endpoint: recv on session %d: %s", sess.ID, m.String())
	}

	if m.Code.IsSignaling() {
		c.dispatchSignal(sess, m)
		return
	}

	if m.Type == coap.ACK || m.Type == coap.RST {
		c.dispatchAckOrReset(sess, m)
		return
	}

	// A peer retransmitting its last confirmable request gets the
	// cached response resent instead of being processed again, RFC
	// 7252 section 4.5.
	if m.Type == coap.CON || m.Type == coap.NON {
		if cached, ok := sess.Dedup().Get(m.MessageID, c.clock.Now()); ok {
			if c.stats != nil {
				c.stats.IncDedupHits()
			}
			if cached != nil {
				c.sendMessage(sess, cached)
			}
			return
		}
		if c.stats != nil {
			c.stats.IncDedupMisses()
		}
	}

	if m.IsEmpty() && m.Type == coap.CON {
		c.handlePing(sess, m)
		return
	}

	if m.Code.IsRequest() {
		c.dispatchRequest(sess, m)
		return
	}

	// A response delivered as a separate CON/NON, matched by token
	// rather than by ACK piggyback.
	c.dispatchResponse(sess, m)
}

func (c *Context) dispatchAckOrReset(sess *session.Session, m *coap.Message) {
	entry, ok := c.txq.Remove(txqueue.Key{SessionID: sess.ID, MessageID: m.MessageID})
	if !ok {
		return // empty ACK/RST with nothing outstanding: drop silently
	}
	c.observeRTT(entry)
	if m.Type == coap.RST {
		if c.stats != nil {
			c.stats.IncResets()
		}
		c.notifyNack(entry, txqueue.RST)
		return
	}
	// Piggybacked response: an ACK carrying a non-empty code.
	if !m.IsEmpty() && m.Code != coap.Empty {
		c.deliverResponse(sess, m)
	}
}

func (c *Context) dispatchResponse(sess *session.Session, m *coap.Message) {
	c.deliverResponse(sess, m)
	if m.Type == coap.CON {
		ack := &coap.Message{Type: coap.ACK, Code: coap.Empty, MessageID: m.MessageID}
		c.sendMessage(sess, ack)
	}
}

// observeRTT records a round-trip sample for entry, following Karn's
// algorithm: a message that was retransmitted gives an ambiguous RTT
// (the ACK might answer any of the copies), so only first-try entries
// feed the estimator.
func (c *Context) observeRTT(entry *txqueue.Entry) {
	if c.stats == nil || entry.Retries != 0 {
		return
	}
	sentAt := entry.FireTick - entry.Timeout
	elapsed := (c.clock.Now() - sentAt).ToDuration()
	c.stats.ObserveRTT(float64(elapsed.Nanoseconds()))
}

func (c *Context) deliverResponse(sess *session.Session, m *coap.Message) {
	key := pendingKey{sessionID: sess.ID, token: hex.EncodeToString(m.Token)}
	p, ok := c.pending[key]
	if !ok {
		return
	}
	delete(c.pending, key)
	sess.CloseToken(m.Token)
	if p.onResponse != nil {
		p.onResponse(m, sess)
	}
}

func (c *Context) dispatchRequest(sess *session.Session, m *coap.Message) {
	if unknown := c.knownOptions.UnknownCriticals(m.Options); len(unknown) > 0 {
		resp := &coap.Message{Code: coap.BadOption, Token: m.Token}
		for _, n := range unknown {
			resp.Options = resp.Options.Add(n, nil)
		}
		c.respond(sess, m, resp)
		return
	}

	resp, err := c.handler.Handle(m, sess)
	if err == ErrNoResponse {
		return
	}
	if err != nil {
		log.Errorf("endpoint: handler error for session %d: %v", sess.ID, err)
		resp = &coap.Message{Code: coap.InternalServerError, Token: m.Token}
	}
	c.respond(sess, m, resp)
}

func (c *Context) respond(sess *session.Session, req, resp *coap.Message) {
	resp.Token = req.Token
	if req.Type == coap.CON {
		resp.Type = coap.ACK
		resp.MessageID = req.MessageID
	} else {
		resp.Type = coap.NON
		resp.MessageID = sess.NextMessageID()
	}
	c.sendMessage(sess, resp)
	sess.Dedup().Put(req.MessageID, resp, c.clock.Now())
}

// handlePing answers an Empty Confirmable message (a CoAP ping) with
// an Empty Acknowledgement (a pong), spec section 4.4 step 4.
func (c *Context) handlePing(sess *session.Session, m *coap.Message) {
	pong := &coap.Message{Type: coap.ACK, Code: coap.Empty, MessageID: m.MessageID}
	c.sendMessage(sess, pong)
}

// checkImplVersion compares the peer's CSM Impl-Version option against
// ours and logs a mismatch; it never rejects the handshake, since the
// option is purely informational.
func (c *Context) checkImplVersion(sess *session.Session, m *coap.Message) {
	peerVersion := coap.ImplVersion(m)
	if peerVersion == "" || c.cfg.ImplVersion == "" {
		return
	}
	ours, err := goversion.NewVersion(c.cfg.ImplVersion)
	if err != nil {
		return
	}
	theirs, err := goversion.NewVersion(peerVersion)
	if err != nil {
		log.Debugf("endpoint: session %d sent unparseable impl version %q", sess.ID, peerVersion)
		return
	}
	if !ours.Equal(theirs) {
		log.Warningf("endpoint: session %d impl version mismatch: local %s, peer %s", sess.ID, ours, theirs)
	}
}

func (c *Context) dispatchSignal(sess *session.Session, m *coap.Message) {
	switch m.Code {
	case coap.SignalCSM:
		sess.ReceiveCSM(coap.MaxMessageSize(m), coap.SupportsBlockWise(m))
		c.checkImplVersion(sess, m)
		if sess.State() == session.Connecting || sess.State() == session.Handshake {
			sess.SetState(session.Established)
		}
	case coap.SignalPing:
		pong := coap.NewPong(false)
		pong.Token = m.Token
		c.sendMessage(sess, pong)
	case coap.SignalPong:
		sess.Touch(c.clock.Now())
	case coap.SignalRelease:
		c.CloseSession(sess)
	case coap.SignalAbort:
		log.Warningf("endpoint: peer aborted session %d", sess.ID)
		c.CloseSession(sess)
	default:
		log.Debugf("endpoint: unhandled signaling code %s from session %d", m.Code, sess.ID)
	}
}
