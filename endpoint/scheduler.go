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

import "time"

// ReadyFd is one descriptor a Scheduler found ready, and which of its
// requested conditions were satisfied.
type ReadyFd struct {
	Fd   int
	Want WantMask
}

// Scheduler is the readiness-driven multiplexer behind process(ctx,
// timeout), spec section 4.5. scheduler_epoll_linux.go provides an
// epoll-backed implementation for Linux; scheduler_select.go provides
// a select-backed fallback for every other platform, both
// implementing this same interface so Context.Process does not care
// which is in use.
type Scheduler interface {
	// Register starts polling fd for the conditions in want.
	Register(fd int, want WantMask) error
	// Modify changes the conditions fd is polled for.
	Modify(fd int, want WantMask) error
	// Unregister stops polling fd.
	Unregister(fd int) error
	// Wait blocks up to timeout for at least one registered fd to
	// become ready, or returns immediately with whatever is already
	// ready. timeout < 0 means wait indefinitely.
	Wait(timeout time.Duration) ([]ReadyFd, error)
	// Close releases the scheduler's own resources (its epoll fd, for
	// example). It does not close any registered fd.
	Close() error
}
