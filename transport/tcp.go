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
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// TCP is the RFC 8323 stream Transport for a single, already
// connected peer. Unlike UDP, one TCP carries exactly one session.
// Reads and writes go directly through raw syscalls on a non-blocking
// fd, bypassing the runtime netpoller entirely, so the fd can be
// registered with the package's own epoll or select set.
type TCP struct {
	fd     int
	laddr  net.Addr
	raddr  net.Addr
	dialed bool // Connect is still in progress (EINPROGRESS)
}

var _ Transport = (*TCP)(nil)

// TCPListener accepts inbound RFC 8323 connections. It is registered
// with the scheduler the same way a Transport is, using its own fd,
// but it is not itself a Transport since it carries no messages.
type TCPListener struct {
	fd    int
	laddr net.Addr
}

// ListenTCP binds and listens on laddr, in non-blocking mode.
func ListenTCP(laddr *net.TCPAddr) (*TCPListener, error) {
	fd, err := socket(laddr.IP)
	if err != nil {
		return nil, err
	}
	bindAddr := &net.UDPAddr{IP: laddr.IP, Port: laddr.Port, Zone: laddr.Zone}
	bsa, err := sockaddr(bindAddr)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, bsa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	bound := laddr
	if sa, err := unix.Getsockname(fd); err == nil {
		if ua, err := addrFromSockaddr(sa); err == nil {
			bound = &net.TCPAddr{IP: ua.IP, Port: ua.Port, Zone: ua.Zone}
		}
	}
	return &TCPListener{fd: fd, laddr: bound}, nil
}

// Fd returns the listening socket's descriptor for readiness
// registration.
func (l *TCPListener) Fd() int { return l.fd }

// Addr returns the bound local address.
func (l *TCPListener) Addr() net.Addr { return l.laddr }

// Accept returns the next pending connection as a TCP Transport, or
// ErrWouldBlock if none is pending.
func (l *TCPListener) Accept() (*TCP, error) {
	connFd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	raddr, err := addrFromSockaddr(sa)
	if err != nil {
		_ = unix.Close(connFd)
		return nil, err
	}
	return &TCP{fd: connFd, laddr: l.laddr, raddr: raddr}, nil
}

// Close releases the listening descriptor.
func (l *TCPListener) Close() error {
	return unix.Close(l.fd)
}

// DialTCP starts a non-blocking connect to raddr. The returned
// Transport's Fd must be polled for writability; once writable, call
// ConnectComplete to find out whether the connection succeeded.
func DialTCP(raddr *net.TCPAddr) (*TCP, error) {
	fd, err := socket(raddr.IP)
	if err != nil {
		return nil, err
	}
	sa, err := sockaddr(&net.UDPAddr{IP: raddr.IP, Port: raddr.Port, Zone: raddr.Zone})
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	return &TCP{fd: fd, raddr: raddr, dialed: err == unix.EINPROGRESS}, nil
}

// Connecting reports whether a non-blocking DialTCP is still awaiting
// its connect to complete, so a caller knows to poll for writability
// rather than readability.
func (t *TCP) Connecting() bool { return t.dialed }

// ConnectComplete finishes a non-blocking DialTCP once the scheduler
// reports the fd writable. It returns nil once the connection is
// established; the caller must not send or receive before that.
func (t *TCP) ConnectComplete() error {
	if !t.dialed {
		return nil
	}
	errno, err := unix.GetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("transport: getsockopt SO_ERROR: %w", err)
	}
	if errno != 0 {
		return fmt.Errorf("transport: connect failed: %w", unix.Errno(errno))
	}
	t.dialed = false
	return nil
}

func socket(ip net.IP) (int, error) {
	domain := unix.AF_INET
	if ip != nil && ip.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("transport: setsockopt SO_REUSEADDR: %w", err)
	}
	return fd, nil
}

// Kind implements Transport.
func (t *TCP) Kind() Kind { return KindTCP }

// Fd implements Transport.
func (t *TCP) Fd() int { return t.fd }

// LocalAddr implements Transport.
func (t *TCP) LocalAddr() net.Addr { return t.laddr }

// RemoteAddr implements Transport.
func (t *TCP) RemoteAddr() net.Addr { return t.raddr }

// Send implements Transport. raddr is ignored: a TCP Transport always
// writes to its one connected peer.
func (t *TCP) Send(b []byte, _ net.Addr) (int, error) {
	n, err := unix.Write(t.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("transport: write: %w", err)
	}
	return n, nil
}

// Recv implements Transport. raddr is always the connected peer.
func (t *TCP) Recv(b []byte) (int, net.Addr, error) {
	n, err := unix.Read(t.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, fmt.Errorf("transport: read: %w", err)
	}
	if n == 0 {
		return 0, nil, fmt.Errorf("transport: %w", net.ErrClosed)
	}
	return n, t.raddr, nil
}

// SetDSCP implements Transport.
func (t *TCP) SetDSCP(dscp int) error {
	tos := dscp << 2
	if t.laddrIsV4() {
		return unix.SetsockoptInt(t.fd, unix.IPPROTO_IP, unix.IP_TOS, tos)
	}
	return unix.SetsockoptInt(t.fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
}

func (t *TCP) laddrIsV4() bool {
	if ua, ok := t.raddr.(*net.UDPAddr); ok {
		return ua.IP.To4() != nil
	}
	if ta, ok := t.raddr.(*net.TCPAddr); ok {
		return ta.IP.To4() != nil
	}
	return true
}

// Close implements Transport.
func (t *TCP) Close() error {
	return unix.Close(t.fd)
}
