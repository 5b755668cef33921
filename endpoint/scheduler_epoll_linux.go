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

//go:build linux

package endpoint

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollScheduler is the Linux Scheduler backend. It keeps its own
// want mask per fd since EpollCtl has no way to read back what a fd
// is currently registered for, which Modify needs to decide EPOLL_CTL_MOD
// semantics correctly (EpollCtl itself requires no prior-state lookup,
// but Unregister does to avoid erroring on a fd that was never added).
type epollScheduler struct {
	epfd int
	want map[int]WantMask
}

// NewScheduler returns the Scheduler for this platform.
func NewScheduler() (Scheduler, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("endpoint: epoll_create1: %w", err)
	}
	return &epollScheduler{epfd: epfd, want: make(map[int]WantMask)}, nil
}

func toEpollEvents(want WantMask) uint32 {
	var ev uint32
	if want.Has(WantRead) || want.Has(WantAccept) {
		ev |= unix.EPOLLIN
	}
	if want.Has(WantWrite) || want.Has(WantConnect) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (s *epollScheduler) Register(fd int, want WantMask) error {
	event := unix.EpollEvent{Events: toEpollEvents(want), Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("endpoint: epoll_ctl add fd %d: %w", fd, err)
	}
	s.want[fd] = want
	return nil
}

func (s *epollScheduler) Modify(fd int, want WantMask) error {
	if _, ok := s.want[fd]; !ok {
		return fmt.Errorf("endpoint: modify unregistered fd %d", fd)
	}
	event := unix.EpollEvent{Events: toEpollEvents(want), Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &event); err != nil {
		return fmt.Errorf("endpoint: epoll_ctl mod fd %d: %w", fd, err)
	}
	s.want[fd] = want
	return nil
}

func (s *epollScheduler) Unregister(fd int) error {
	if _, ok := s.want[fd]; !ok {
		return nil
	}
	// event argument is ignored by EPOLL_CTL_DEL on modern kernels but
	// older kernels (pre-2.6.9) required a non-nil pointer.
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}); err != nil && err != unix.ENOENT {
		return fmt.Errorf("endpoint: epoll_ctl del fd %d: %w", fd, err)
	}
	delete(s.want, fd)
	return nil
}

func (s *epollScheduler) Wait(timeout time.Duration) ([]ReadyFd, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout.Milliseconds())
	}
	events := make([]unix.EpollEvent, len(s.want))
	if len(events) == 0 {
		if msec > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}
	n, err := unix.EpollWait(s.epfd, events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("endpoint: epoll_wait: %w", err)
	}

	ready := make([]ReadyFd, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		want := s.want[fd]
		var got WantMask
		if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			if want.Has(WantAccept) {
				got |= WantAccept
			} else {
				got |= WantRead
			}
		}
		if events[i].Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
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

func (s *epollScheduler) Close() error {
	return unix.Close(s.epfd)
}
