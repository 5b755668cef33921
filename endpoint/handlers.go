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
	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/session"
	"github.com/facebookincubator/coap/txqueue"
)

// Handler answers an inbound request. Returning (nil, ErrNoResponse)
// tells the Context to send nothing back, the correct answer for a
// NON request a resource handler chooses to ignore; any other
// non-nil error produces a 5.00 Internal Server Error response.
type Handler interface {
	Handle(req *coap.Message, sess *session.Session) (*coap.Message, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *coap.Message, sess *session.Session) (*coap.Message, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(req *coap.Message, sess *session.Session) (*coap.Message, error) {
	return f(req, sess)
}

// NackHandler is notified when an outstanding confirmable
// transmission is abandoned without an ACK, spec section 6's handler
// signature.
type NackHandler func(entry *txqueue.Entry, reason txqueue.Reason)

// ResponseHandler is notified when a response arrives for a request
// this Context sent, matched by token, spec section 4.4.
type ResponseHandler func(resp *coap.Message, sess *session.Session)
