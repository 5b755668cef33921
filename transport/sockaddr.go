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

// sockaddr converts a *net.UDPAddr to the unix.Sockaddr form
// unix.Sendto requires.
func sockaddr(addr *net.UDPAddr) (unix.Sockaddr, error) {
	if v4 := addr.IP.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], v4)
		return sa, nil
	}
	v6 := addr.IP.To16()
	if v6 == nil {
		return nil, fmt.Errorf("transport: invalid IP %v", addr.IP)
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], v6)
	if addr.Zone != "" {
		if iface, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(iface.Index)
		}
	}
	return sa, nil
}

// addrFromSockaddr converts the unix.Sockaddr unix.Recvfrom returns
// back into a *net.UDPAddr.
func addrFromSockaddr(sa unix.Sockaddr) (*net.UDPAddr, error) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}, nil
	case *unix.SockaddrInet6:
		ua := &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
		if s.ZoneId != 0 {
			if iface, err := net.InterfaceByIndex(int(s.ZoneId)); err == nil {
				ua.Zone = iface.Name
			}
		}
		return ua, nil
	default:
		return nil, fmt.Errorf("transport: unsupported sockaddr type %T", sa)
	}
}
