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
	"net"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/transport"
)

// fakeTransport is a hand-rolled transport.Transport test double: no
// real socket, just a send log and a recv queue the test fills ahead
// of time, in the same spirit as session_test.go's fakeClock.
type fakeTransport struct {
	fd    int
	kind  transport.Kind
	laddr net.Addr
	raddr net.Addr

	sent []sentDatagram

	recvQueue []recvDatagram
	sendErr   error // consumed once by the next Send call
	dscp      int
	closed    bool
}

type sentDatagram struct {
	raddr net.Addr
	data  []byte
}

type recvDatagram struct {
	data []byte
	from net.Addr
	err  error
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeUDP(fd int) *fakeTransport {
	return &fakeTransport{
		fd:    fd,
		kind:  transport.KindUDP,
		laddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: coap.DefaultPort},
	}
}

func newFakeTCP(fd int, raddr net.Addr) *fakeTransport {
	return &fakeTransport{
		fd:    fd,
		kind:  transport.KindTCP,
		laddr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5683},
		raddr: raddr,
	}
}

func (f *fakeTransport) Kind() transport.Kind { return f.kind }
func (f *fakeTransport) Fd() int              { return f.fd }
func (f *fakeTransport) LocalAddr() net.Addr  { return f.laddr }
func (f *fakeTransport) RemoteAddr() net.Addr { return f.raddr }

func (f *fakeTransport) Send(b []byte, raddr net.Addr) (int, error) {
	if f.sendErr != nil {
		err := f.sendErr
		f.sendErr = nil
		return 0, err
	}
	cp := append([]byte(nil), b...)
	f.sent = append(f.sent, sentDatagram{raddr: raddr, data: cp})
	return len(b), nil
}

func (f *fakeTransport) Recv(b []byte) (int, net.Addr, error) {
	if len(f.recvQueue) == 0 {
		return 0, nil, transport.ErrWouldBlock
	}
	next := f.recvQueue[0]
	f.recvQueue = f.recvQueue[1:]
	if next.err != nil {
		return 0, nil, next.err
	}
	n := copy(b, next.data)
	return n, next.from, nil
}

func (f *fakeTransport) SetDSCP(dscp int) error {
	f.dscp = dscp
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) lastSent() []byte {
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1].data
}
