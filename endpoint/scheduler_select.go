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

//go:build !linux

package endpoint

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// selectScheduler is the portable Scheduler fallback for platforms
// without epoll, built on unix.Select. It is O(numFds) per Wait call
// where epoll is O(ready), the tradeoff spec section 9 accepts for
// non-Linux builds in exchange for zero platform-specific code.
type selectScheduler struct {
	want map[int]WantMask
}

// NewScheduler returns the Scheduler for this platform.
func NewScheduler() (Scheduler, error) {
	return &selectScheduler{want: make(map[int]WantMask)}, nil
}

func (s *selectScheduler) Register(fd int, want WantMask) error {
	s.want[fd] = want
	return nil
}

func (s *selectScheduler) Modify(fd int, want WantMask) error {
	if _, ok := s.want[fd]; !ok {
		return fmt.Errorf("endpoint: modify unregistered fd %d", fd)
	}
	s.want[fd] = want
	return nil
}

func (s *selectScheduler) Unregister(fd int) error {
	delete(s.want, fd)
	return nil
}

func (s *selectScheduler) Wait(timeout time.Duration) ([]ReadyFd, error) {
	var rfds, wfds unix.FdSet
	maxFd := 0
	any := false
	for fd, want := range s.want {
		if want.Has(WantRead) || want.Has(WantAccept) {
			rfds.Set(fd)
			any = true
		}
		if want.Has(WantWrite) || want.Has(WantConnect) {
			wfds.Set(fd)
			any = true
		}
		if fd > maxFd {
			maxFd = fd
		}
	}
	if !any {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	tvp := &tv
	if timeout < 0 {
		tvp = nil
	}
	n, err := unix.Select(maxFd+1, &rfds, &wfds, nil, tvp)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("endpoint: select: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]ReadyFd, 0, n)
	for fd, want := range s.want {
		var got WantMask
		if rfds.IsSet(fd) {
			if want.Has(WantAccept) {
				got |= WantAccept
			} else {
				got |= WantRead
			}
		}
		if wfds.IsSet(fd) {
			if want.Has(WantConnect) {
				got |= WantConnect
			} else {
				got |= WantWrite
			}
		}
		if got != 0 {
			ready = append(ready, ReadyFd{Fd: fd, Want: got})
		}
	}
	return ready, nil
}

func (s *selectScheduler) Close() error {
	return nil
}
