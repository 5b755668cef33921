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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/coap/transport"
)

const recvBufSize = 64 * 1024

// Process is the single entry point spec section 4.5 requires: it
// waits up to timeout for I/O readiness, services every ready
// descriptor, and drives any retransmissions that have come due. It
// returns the duration actually waited, so a caller loop can decide
// whether it was woken by I/O or by its own deadline.
//
// Process is not safe to call from more than one goroutine at a time;
// a Context belongs to a single driving loop.
func (c *Context) Process(timeout time.Duration) (time.Duration, error) {
	if c.sched == nil {
		return 0, fmt.Errorf("endpoint: Process called before UseScheduler")
	}

	waitFor := timeout
	if deadline, ok := c.NextDeadline(); ok {
		until := (deadline - c.clock.Now()).ToDuration()
		if timeout < 0 || until < timeout {
			waitFor = until
		}
	}
	if waitFor < 0 {
		waitFor = 0
	}

	started := c.clock.Now()
	ready, err := c.sched.Wait(waitFor)
	if err != nil {
		return 0, fmt.Errorf("endpoint: scheduler wait: %w", err)
	}

	for _, r := range ready {
		c.service(r)
	}

	c.driveRetransmissions(c.clock.Now())
	c.Housekeep(c.clock.Now())
	return (c.clock.Now() - started).ToDuration(), nil
}

func (c *Context) service(r ReadyFd) {
	if l, ok := c.listeners[r.Fd]; ok {
		c.serviceListener(l)
		return
	}
	t, ok := c.transports[r.Fd]
	if !ok {
		return
	}

	if r.Want.Has(WantConnect) {
		c.serviceConnect(t)
		return
	}
	if r.Want.Has(WantWrite) {
		c.flushOutbox(t)
	}
	if r.Want.Has(WantRead) {
		if t.Kind().Datagram() {
			c.serviceDatagramRead(t)
		} else {
			c.serviceStreamRead(t)
		}
	}
}

func (c *Context) serviceListener(l *transport.TCPListener) {
	for {
		conn, err := l.Accept()
		if err == transport.ErrWouldBlock {
			return
		}
		if err != nil {
			log.Warningf("endpoint: accept on listener fd %d: %v", l.Fd(), err)
			return
		}
		if _, err := c.AdoptStream(conn); err != nil {
			log.Warningf("endpoint: adopt accepted connection: %v", err)
			_ = conn.Close()
		}
	}
}

func (c *Context) serviceConnect(t transport.Transport) {
	cp, ok := t.(connectPending)
	if !ok {
		return
	}
	if err := cp.ConnectComplete(); err != nil {
		log.Warningf("endpoint: connect failed on fd %d: %v", t.Fd(), err)
		if sess, ok := c.streamSessions[t.Fd()]; ok {
			c.CloseSession(sess)
		} else {
			_ = c.sched.Unregister(t.Fd())
			delete(c.transports, t.Fd())
			_ = t.Close()
		}
		return
	}
	if err := c.sched.Modify(t.Fd(), WantRead); err != nil {
		log.Warningf("endpoint: register read interest on fd %d: %v", t.Fd(), err)
	}
}

func (c *Context) serviceDatagramRead(t transport.Transport) {
	buf := make([]byte, recvBufSize)
	for {
		n, raddr, err := t.Recv(buf)
		if err == transport.ErrWouldBlock {
			return
		}
		if err != nil {
			log.Warningf("endpoint: recv on fd %d: %v", t.Fd(), err)
			return
		}
		c.DeliverDatagram(t, raddr, buf[:n])
	}
}

func (c *Context) serviceStreamRead(t transport.Transport) {
	sess, ok := c.streamSessions[t.Fd()]
	if !ok {
		return
	}
	buf := make([]byte, recvBufSize)
	for {
		n, _, err := t.Recv(buf)
		if err == transport.ErrWouldBlock {
			return
		}
		if err != nil {
			log.Debugf("endpoint: stream closed on session %d: %v", sess.ID, err)
			c.CloseSession(sess)
			return
		}
		pending := append(c.streamBuf[t.Fd()], buf[:n]...)
		consumed := c.DeliverStreamBytes(sess, pending)
		remainder := pending[consumed:]
		rest := make([]byte, len(remainder))
		copy(rest, remainder)
		c.streamBuf[t.Fd()] = rest
	}
}
