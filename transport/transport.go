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

// Package transport adapts the datagram (RFC 7252) and stream (RFC
// 8323) wire framings in package coap onto real sockets, spec section
// 4.1's "Transport adapter". Every adapter exposes a raw, non-blocking
// file descriptor so a single package endpoint scheduler can multiplex
// all of them with one epoll or select call, spec section 4.5.
package transport

import (
	"errors"
	"net"
)

// ErrWouldBlock is returned by Send and Recv when the socket has no
// data ready, the non-blocking equivalent of EAGAIN. Callers treat it
// the same way EAGAIN is treated in a raw syscall loop: not an error,
// just "try again once the scheduler reports readiness".
var ErrWouldBlock = errors.New("transport: would block")

// ErrNotImplemented is returned by transports that are recognized by
// the wire protocol but whose socket-level implementation is out of
// scope, spec section 1's Non-goals.
var ErrNotImplemented = errors.New("transport: not implemented")

// Kind identifies the wire framing a Transport carries, which in turn
// selects datagram versus stream parsing in package coap.
type Kind int

// Transport kinds, spec section 4.1.
const (
	KindUDP Kind = iota
	KindDTLS
	KindTCP
	KindTLS
)

// String returns the taxonomy name.
func (k Kind) String() string {
	switch k {
	case KindUDP:
		return "udp"
	case KindDTLS:
		return "dtls"
	case KindTCP:
		return "tcp"
	case KindTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Datagram returns whether this Kind frames messages with the RFC
// 7252 fixed 4-byte header rather than RFC 8323 length-prefixed
// stream framing.
func (k Kind) Datagram() bool {
	return k == KindUDP || k == KindDTLS
}

// Transport is the adapter interface spec section 4.1 requires: every
// byte that crosses the wire, in either direction, passes through
// exactly one of these. Implementations are not safe for concurrent
// use; the owning session serializes access the same way the rest of
// per-session state is serialized, spec section 4.5.
type Transport interface {
	// Kind reports the wire framing this Transport carries.
	Kind() Kind
	// Fd returns the underlying non-blocking file descriptor for
	// registration with the scheduler's readiness poll.
	Fd() int
	// LocalAddr returns the local socket address.
	LocalAddr() net.Addr
	// RemoteAddr returns the peer address for connected transports,
	// or nil for an unconnected datagram socket that serves many
	// peers.
	RemoteAddr() net.Addr
	// Send writes b, returning ErrWouldBlock if the socket send
	// buffer is full. raddr is used for unconnected datagram sockets
	// and ignored otherwise.
	Send(b []byte, raddr net.Addr) (int, error)
	// Recv reads into b, returning ErrWouldBlock if nothing is
	// available. raddr is populated for unconnected datagram sockets.
	Recv(b []byte) (n int, raddr net.Addr, err error)
	// SetDSCP marks outgoing packets with the given Differentiated
	// Services Code Point, spec section 4.1's "path MTU and DSCP
	// marking".
	SetDSCP(dscp int) error
	// Close releases the underlying descriptor.
	Close() error
}
