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
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// UDP is the RFC 7252 datagram Transport. A single UDP socket serves
// every peer session bound to it; sends and receives carry an
// explicit address the way unix.Sendto/unix.Recvfrom do, rather than
// net.UDPConn's blocking API, so the socket can be registered
// directly with the scheduler's epoll or select set.
type UDP struct {
	conn *net.UDPConn
	fd   int
}

var _ Transport = (*UDP)(nil)

// ListenUDP binds a UDP socket on laddr and switches it to
// non-blocking mode for use with the scheduler.
func ListenUDP(laddr *net.UDPAddr) (*UDP, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp: %w", err)
	}
	return newUDP(conn)
}

func newUDP(conn *net.UDPConn) (*UDP, error) {
	fd, err := connFd(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("transport: set nonblock: %w", err)
	}
	return &UDP{conn: conn, fd: fd}, nil
}

// connFd extracts the raw file descriptor backing a *net.UDPConn or
// *net.TCPConn so it can be driven directly with unix.* syscalls,
// bypassing the runtime netpoller the same way timestamp.ConnFd does.
func connFd(conn syscall.Conn) (int, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := rc.Control(func(f uintptr) {
		fd = int(f)
	})
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// Kind implements Transport.
func (u *UDP) Kind() Kind { return KindUDP }

// Fd implements Transport.
func (u *UDP) Fd() int { return u.fd }

// LocalAddr implements Transport.
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

// RemoteAddr implements Transport. A bound UDP socket is not
// connected to a single peer, so this is always nil.
func (u *UDP) RemoteAddr() net.Addr { return nil }

// Send implements Transport.
func (u *UDP) Send(b []byte, raddr net.Addr) (int, error) {
	ua, ok := raddr.(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("transport: udp send needs a *net.UDPAddr, got %T", raddr)
	}
	sa, err := sockaddr(ua)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(u.fd, b, 0, sa); err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("transport: sendto: %w", err)
	}
	return len(b), nil
}

// Recv implements Transport.
func (u *UDP) Recv(b []byte) (int, net.Addr, error) {
	n, sa, err := unix.Recvfrom(u.fd, b, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, fmt.Errorf("transport: recvfrom: %w", err)
	}
	addr, err := addrFromSockaddr(sa)
	if err != nil {
		return 0, nil, err
	}
	return n, addr, nil
}

// SetDSCP implements Transport, marking the IP_TOS (or IPV6_TCLASS)
// byte of every datagram this socket sends, spec section 4.1.
func (u *UDP) SetDSCP(dscp int) error {
	laddr, ok := u.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("transport: cannot determine address family for DSCP")
	}
	tos := dscp << 2
	if laddr.IP.To4() != nil {
		return ipv4.NewPacketConn(u.conn).SetTOS(tos)
	}
	return ipv6.NewPacketConn(u.conn).SetTrafficClass(tos)
}

// Close implements Transport.
func (u *UDP) Close() error {
	return u.conn.Close()
}
