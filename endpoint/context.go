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
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/session"
	"github.com/facebookincubator/coap/stats"
	"github.com/facebookincubator/coap/transport"
	"github.com/facebookincubator/coap/txqueue"
)

// pendingKey identifies one outstanding request this Context is
// waiting on a response for, spec section 4.4's token correlation.
type pendingKey struct {
	sessionID uint64
	token     string
}

type pendingRequest struct {
	onResponse ResponseHandler
	onNack     NackHandler
}

// outboxEntry is one datagram queued behind transport.ErrWouldBlock.
type outboxEntry struct {
	raddr net.Addr
	data  []byte
}

// Context owns every endpoint-wide resource: the session registry,
// the time-ordered retransmission queue, the registered transports
// and the request handler, spec section 4.4's "Context" component. It
// is driven by repeated calls to Process and is not safe for
// concurrent use from more than one goroutine at a time, spec section
// 4.5.
type Context struct {
	cfg     *Config
	clock   coap.Clock
	rand    coap.Rand
	handler Handler

	registry *session.Registry
	txq      *txqueue.Queue
	backoff  txqueue.Backoff

	knownOptions *coap.Filter
	cacheIgnore  *coap.Filter

	pending map[pendingKey]*pendingRequest

	// sessionsByAddr maps "transportFd:remoteAddr" to the Session
	// serving that peer on a datagram Transport, so a new UDP peer
	// gets a Session the first time a packet arrives from it.
	sessionsByAddr map[string]*session.Session

	transports map[int]transport.Transport

	// outbox holds datagrams that could not be written immediately
	// because Send returned transport.ErrWouldBlock, keyed by fd, so
	// the scheduler can retry them once the fd reports writable. A
	// single UDP fd serves many peers, so each entry carries its own
	// destination address rather than assuming one per fd.
	outbox map[int][]outboxEntry

	sched     Scheduler
	listeners map[int]*transport.TCPListener

	// streamSessions and streamBuf key a stream Transport's Session and
	// its not-yet-parsed trailing bytes by fd, since a stream Transport
	// belongs to exactly one Session for its whole lifetime.
	streamSessions map[int]*session.Session
	streamBuf      map[int][]byte

	// stats is nil unless SetStats is called, so counting is a
	// no-op cost rather than a requirement for every caller.
	stats stats.Stats
}

// SetStats wires a Stats reporter into the Context so dispatch and
// retransmission events are counted as they happen.
func (c *Context) SetStats(s stats.Stats) {
	c.stats = s
}

// NewContext builds a Context. cfg is checked in place.
func NewContext(cfg *Config, clock coap.Clock, rnd coap.Rand, handler Handler) *Context {
	cfg.Check()
	return &Context{
		cfg:            cfg,
		clock:          clock,
		rand:           rnd,
		handler:        handler,
		registry:       session.NewRegistry(),
		txq:            txqueue.NewQueue(),
		backoff:        txqueue.NewBackoff(cfg.AckTimeout, cfg.AckRandomFactor, cfg.MaxRetransmit),
		knownOptions:   coap.NewKnownOptionsFilter(coap.OptionURIPath, coap.OptionURIQuery, coap.OptionContentFormat, coap.OptionAccept, coap.OptionObserve, coap.OptionBlock1, coap.OptionBlock2, coap.OptionSize1, coap.OptionSize2, coap.OptionURIHost, coap.OptionURIPort, coap.OptionIfMatch, coap.OptionIfNoneMatch, coap.OptionETag, coap.OptionMaxAge, coap.OptionProxyURI, coap.OptionProxyScheme, coap.OptionLocationPath, coap.OptionLocationQuery),
		cacheIgnore:    coap.NewKnownOptionsFilter(),
		pending:        make(map[pendingKey]*pendingRequest),
		sessionsByAddr: make(map[string]*session.Session),
		transports:     make(map[int]transport.Transport),
		outbox:         make(map[int][]outboxEntry),
		listeners:      make(map[int]*transport.TCPListener),
		streamSessions: make(map[int]*session.Session),
		streamBuf:      make(map[int][]byte),
	}
}

// connectPending is implemented by a Transport whose connect may still
// be in progress, currently only *transport.TCP. TLS performs its
// handshake synchronously before the Transport exists, and UDP has no
// connect step at all.
type connectPending interface {
	Connecting() bool
	ConnectComplete() error
}

// UseScheduler binds sched to this Context and registers every
// Transport and listener already added, spec section 4.5. It must be
// called at most once.
func (c *Context) UseScheduler(sched Scheduler) error {
	c.sched = sched
	for fd, t := range c.transports {
		if err := sched.Register(fd, wantForTransport(t)); err != nil {
			return err
		}
	}
	for fd := range c.listeners {
		if err := sched.Register(fd, WantAccept); err != nil {
			return err
		}
	}
	return nil
}

func wantForTransport(t transport.Transport) WantMask {
	if cp, ok := t.(connectPending); ok && cp.Connecting() {
		return WantConnect
	}
	return WantRead
}

// AddTransport registers t with the Context so Process polls it for
// readiness, applying the Context's configured DSCP marking.
func (c *Context) AddTransport(t transport.Transport) error {
	if c.cfg.DSCP != 0 {
		if err := t.SetDSCP(c.cfg.DSCP); err != nil {
			return fmt.Errorf("endpoint: set dscp: %w", err)
		}
	}
	c.transports[t.Fd()] = t
	if c.sched != nil {
		if err := c.sched.Register(t.Fd(), wantForTransport(t)); err != nil {
			return err
		}
	}
	return nil
}

// AddListener registers a stream listener so Process accepts inbound
// connections on it, spec section 4.3.
func (c *Context) AddListener(l *transport.TCPListener) error {
	c.listeners[l.Fd()] = l
	if c.sched != nil {
		if err := c.sched.Register(l.Fd(), WantAccept); err != nil {
			return err
		}
	}
	return nil
}

// Sessions returns the session registry, for stats export and CLI
// introspection.
func (c *Context) Sessions() *session.Registry {
	return c.registry
}

func addrKey(fd int, addr net.Addr) string {
	return fmt.Sprintf("%d:%s", fd, addr.String())
}

// sessionFor returns the Session for a datagram peer, creating one on
// first contact, spec section 4.3's "per-peer lifecycle".
func (c *Context) sessionFor(t transport.Transport, raddr net.Addr) *session.Session {
	key := addrKey(t.Fd(), raddr)
	if s, ok := c.sessionsByAddr[key]; ok {
		return s
	}
	s := session.New(0, t, raddr, c.clock, c.rand, c.cfg.DedupCapacity, coap.Duration(c.cfg.DedupTTL))
	c.registry.Add(s)
	c.sessionsByAddr[key] = s
	if c.stats != nil {
		c.stats.IncSessionsOpened()
	}
	log.Debugf("endpoint: new session %d (%s) for peer %s", s.ID, s.XID, raddr)
	return s
}

// AdoptStream registers a Session for an already-connected stream
// Transport (accepted or dialed), spec section 4.3.
func (c *Context) AdoptStream(t transport.Transport) (*session.Session, error) {
	if err := c.AddTransport(t); err != nil {
		return nil, err
	}
	s := session.New(0, t, t.RemoteAddr(), c.clock, c.rand, c.cfg.DedupCapacity, coap.Duration(c.cfg.DedupTTL))
	s.SetState(session.Connecting)
	c.registry.Add(s)
	c.streamSessions[t.Fd()] = s
	if c.stats != nil {
		c.stats.IncSessionsOpened()
	}
	log.Debugf("endpoint: new stream session %d (%s) for peer %s", s.ID, s.XID, t.RemoteAddr())
	c.sendMessage(s, coap.NewCSM(uint32(coap.DefaultMTU), false, c.cfg.ImplVersion))
	return s, nil
}

// CloseSession tears a session down: drops its outstanding
// retransmissions and pending requests, and removes it from the
// registry, spec section 4.3.
func (c *Context) CloseSession(s *session.Session) {
	s.SetState(session.Closed)
	if c.stats != nil {
		c.stats.IncSessionsClosed()
	}
	for _, e := range c.txq.RemoveSession(s.ID) {
		c.notifyNack(e, txqueue.Cancelled)
	}
	for key := range c.pending {
		if key.sessionID == s.ID {
			delete(c.pending, key)
		}
	}
	if s.Peer != nil {
		fd := s.Peer.Fd()
		if !s.Peer.Kind().Datagram() {
			if c.sched != nil {
				_ = c.sched.Unregister(fd)
			}
			delete(c.transports, fd)
			delete(c.streamSessions, fd)
			delete(c.streamBuf, fd)
			delete(c.outbox, fd)
			_ = s.Peer.Close()
		} else {
			delete(c.sessionsByAddr, addrKey(fd, s.Raddr))
		}
	}
	c.registry.Remove(s.ID)
}

func (c *Context) notifyNack(e *txqueue.Entry, reason txqueue.Reason) {
	key := pendingKey{sessionID: e.Key.SessionID, token: hex.EncodeToString(e.Token)}
	if p, ok := c.pending[key]; ok && p.onNack != nil {
		p.onNack(e, reason)
	}
	delete(c.pending, key)
}

// queueSend writes b to t, buffering it in the per-fd outbox on
// ErrWouldBlock instead of dropping it, spec section 4.5. The outbox
// is bounded by Config.OutboxLimit: once full, queueSend returns
// ErrQueueFull rather than growing the pending list without limit,
// spec section 5's back-pressure requirement.
func (c *Context) queueSend(t transport.Transport, b []byte, raddr net.Addr) error {
	fd := t.Fd()
	if pending := c.outbox[fd]; len(pending) > 0 {
		if len(pending) >= c.cfg.OutboxLimit {
			return ErrQueueFull
		}
		c.outbox[fd] = append(pending, outboxEntry{raddr: raddr, data: b})
		return nil
	}
	_, err := t.Send(b, raddr)
	if err == transport.ErrWouldBlock {
		c.outbox[fd] = append(c.outbox[fd], outboxEntry{raddr: raddr, data: b})
		if c.sched != nil {
			if err := c.sched.Modify(fd, WantRead|WantWrite); err != nil {
				log.Warningf("endpoint: register write interest on fd %d: %v", fd, err)
			}
		}
		return nil
	}
	return err
}

// flushOutbox retries every buffered datagram on t once it reports
// writable, each to its own recorded destination.
func (c *Context) flushOutbox(t transport.Transport) {
	fd := t.Fd()
	pending := c.outbox[fd]
	for len(pending) > 0 {
		_, err := t.Send(pending[0].data, pending[0].raddr)
		if err == transport.ErrWouldBlock {
			break
		}
		if err != nil {
			log.Warningf("endpoint: flush outbox on fd %d: %v", fd, err)
		}
		pending = pending[1:]
	}
	if len(pending) == 0 {
		delete(c.outbox, fd)
		if c.sched != nil {
			if err := c.sched.Modify(fd, WantRead); err != nil {
				log.Warningf("endpoint: clear write interest on fd %d: %v", fd, err)
			}
		}
	} else {
		c.outbox[fd] = pending
	}
}
