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

func TestUDPSendRecvLoopback(t *testing.T) {
	a, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer a.Close()

	b, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer b.Close()

	_, err = a.Send([]byte("hello"), b.LocalAddr())
	require.NoError(t, err)

	buf := make([]byte, 64)
	var n int
	var from net.Addr
	require.Eventually(t, func() bool {
		n, from, err = b.Recv(buf)
		return err == nil
	}, time.Second, time.Millisecond)

	assert.Equal(t, "hello", string(buf[:n]))
	assert.NotNil(t, from)
}

func TestUDPRecvWouldBlockWhenIdle(t *testing.T) {
	a, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer a.Close()

	buf := make([]byte, 64)
	_, _, err = a.Recv(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestUDPKindAndFd(t *testing.T) {
	a, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, KindUDP, a.Kind())
	assert.Greater(t, a.Fd(), 0)
	assert.Nil(t, a.RemoteAddr())
}

func TestUDPSetDSCP(t *testing.T) {
	a, err := ListenUDP(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.SetDSCP(46))
}
