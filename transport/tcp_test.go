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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPAcceptAndExchange(t *testing.T) {
	ln, err := ListenTCP(&net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	client, err := DialTCP(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: addr.Port})
	require.NoError(t, err)
	defer client.Close()

	var server *TCP
	require.Eventually(t, func() bool {
		var acceptErr error
		server, acceptErr = ln.Accept()
		return acceptErr == nil
	}, time.Second, time.Millisecond)
	defer server.Close()

	require.Eventually(t, func() bool {
		return client.ConnectComplete() == nil
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := client.Send([]byte("ping"), nil)
		return err == nil
	}, time.Second, time.Millisecond)

	buf := make([]byte, 64)
	var n int
	require.Eventually(t, func() bool {
		var recvErr error
		n, _, recvErr = server.Recv(buf)
		return recvErr == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestTCPKind(t *testing.T) {
	ln, err := ListenTCP(&net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	client, err := DialTCP(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: addr.Port})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, KindTCP, client.Kind())
	assert.Greater(t, client.Fd(), 0)
}
