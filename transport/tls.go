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

package transport

import (
	"crypto/tls"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// TLS is the RFC 8323 secure stream Transport. TLS's record layer
// needs a real byte stream reader during the handshake, so unlike UDP
// and TCP this Transport does not drive raw syscalls itself: a
// background goroutine pumps tls.Conn.Read into a byte channel, and
// Recv drains that channel without blocking. Fd still exposes the
// underlying socket so the scheduler can wake up the pump promptly,
// even though the pump, not the scheduler, performs the actual read.
type TLS struct {
	conn *tls.Conn
	fd   int
	rx   chan []byte
	errc chan error
}

var _ Transport = (*TLS)(nil)

// DialTLS opens an outbound RFC 8323 secure connection.
func DialTLS(raddr *net.TCPAddr, cfg *tls.Config) (*TLS, error) {
	rawConn, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp for tls: %w", err)
	}
	conn := tls.Client(rawConn, cfg)
	if err := conn.Handshake(); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("transport: tls handshake: %w", err)
	}
	return wrapTLS(conn, rawConn)
}

// ServerTLS wraps an accepted plain connection with a TLS server
// handshake.
func ServerTLS(rawConn *net.TCPConn, cfg *tls.Config) (*TLS, error) {
	conn := tls.Server(rawConn, cfg)
	if err := conn.Handshake(); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("transport: tls handshake: %w", err)
	}
	return wrapTLS(conn, rawConn)
}

func wrapTLS(conn *tls.Conn, rawConn *net.TCPConn) (*TLS, error) {
	fd, err := connFd(rawConn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	t := &TLS{conn: conn, fd: fd, rx: make(chan []byte, 16), errc: make(chan error, 1)}
	go t.pump()
	return t, nil
}

func (t *TLS) pump() {
	buf := make([]byte, 16*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			t.rx <- cp
		}
		if err != nil {
			t.errc <- err
			return
		}
	}
}

// Kind implements Transport.
func (t *TLS) Kind() Kind { return KindTLS }

// Fd implements Transport.
func (t *TLS) Fd() int { return t.fd }

// LocalAddr implements Transport.
func (t *TLS) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// RemoteAddr implements Transport.
func (t *TLS) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// Send implements Transport. raddr is ignored.
func (t *TLS) Send(b []byte, _ net.Addr) (int, error) {
	n, err := t.conn.Write(b)
	if err != nil {
		return 0, fmt.Errorf("transport: tls write: %w", err)
	}
	return n, nil
}

// Recv implements Transport, draining bytes the background pump
// goroutine already read off the wire, or ErrWouldBlock if none are
// ready yet.
func (t *TLS) Recv(b []byte) (int, net.Addr, error) {
	select {
	case chunk := <-t.rx:
		n := copy(b, chunk)
		if n < len(chunk) {
			t.rx <- chunk[n:]
		}
		return n, t.conn.RemoteAddr(), nil
	case err := <-t.errc:
		return 0, nil, fmt.Errorf("transport: tls read: %w", err)
	default:
		return 0, nil, ErrWouldBlock
	}
}

// SetDSCP implements Transport.
func (t *TLS) SetDSCP(dscp int) error {
	laddr, ok := t.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("transport: cannot determine address family for DSCP")
	}
	tos := dscp << 2
	if laddr.IP.To4() != nil {
		return unix.SetsockoptInt(t.fd, unix.IPPROTO_IP, unix.IP_TOS, tos)
	}
	return unix.SetsockoptInt(t.fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
}

// Close implements Transport.
func (t *TLS) Close() error {
	return t.conn.Close()
}

// DTLS is a placeholder for the RFC 7252 Appendix B secure datagram
// Transport. There is no DTLS implementation in the standard library
// or the rest of this module's dependency set, so wiring an actual
// handshake is out of scope; endpoints that request it get
// ErrNotImplemented instead of a silently plaintext fallback.
type DTLS struct{}

// Kind implements Transport.
func (DTLS) Kind() Kind { return KindDTLS }

// Fd implements Transport.
func (DTLS) Fd() int { return -1 }

// LocalAddr implements Transport.
func (DTLS) LocalAddr() net.Addr { return nil }

// RemoteAddr implements Transport.
func (DTLS) RemoteAddr() net.Addr { return nil }

// Send implements Transport.
func (DTLS) Send([]byte, net.Addr) (int, error) { return 0, ErrNotImplemented }

// Recv implements Transport.
func (DTLS) Recv([]byte) (int, net.Addr, error) { return 0, nil, ErrNotImplemented }

// SetDSCP implements Transport.
func (DTLS) SetDSCP(int) error { return ErrNotImplemented }

// Close implements Transport.
func (DTLS) Close() error { return nil }
