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

import "errors"

// ErrQueueFull is returned by Context.Send when the retransmission
// queue is at capacity, spec section 6's back-pressure signal.
var ErrQueueFull = errors.New("endpoint: send queue full")

// ErrNStartExceeded is returned by Context.Send when sess already has
// NStart Confirmable exchanges outstanding, RFC 7252 section 4.7.
var ErrNStartExceeded = errors.New("endpoint: nstart exceeded")

// ErrUnknownSession is returned when an operation names a session ID
// the Context no longer tracks.
var ErrUnknownSession = errors.New("endpoint: unknown session")

// ErrNoResponse is returned by a Handler that intentionally produces
// no reply, for example to a NON request it chooses to ignore.
var ErrNoResponse = errors.New("endpoint: no response")
