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

package session

import (
	"encoding/hex"
	"net"

	"github.com/rs/xid"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/transport"
)

// DefaultCSMTimeout and DefaultPingTimeout bound how long a stream
// session waits for its peer's CSM or Pong before it is declared
// unresponsive, spec section 4.3.
const (
	DefaultCSMTimeout  = 10 * coap.TicksPerSecond
	DefaultPingTimeout = 30 * coap.TicksPerSecond
)

// Session is one peer's state: everything needed to send and receive
// on its behalf without consulting any other session, spec section
// 4.3. A datagram Transport is shared by many Sessions, one per
// remote address; a stream Transport belongs to exactly one Session.
type Session struct {
	ID    uint64
	Peer  transport.Transport
	Raddr net.Addr

	// XID is a globally unique, time-sortable correlation ID for log
	// lines and external tooling, since ID is only unique within one
	// running process and gets reused across restarts.
	XID xid.ID

	state State

	mid   *MIDAllocator
	rand  coap.Rand
	dedup *Dedup

	// tokens tracks outstanding request tokens this session has sent,
	// keyed by their hex encoding, for cancel-by-token and
	// response-to-request correlation, spec section 4.4.
	tokens map[string]uint16

	// reserved holds tokens an out-of-scope subsystem (e.g. an observe
	// registration) has claimed for itself. Reserved tokens never
	// appear in tokens and so never age out under the request/response
	// timeout bookkeeping NewToken/OpenMessageID/CloseToken implement.
	reserved map[string]struct{}

	// Negotiated stream parameters, spec section 4.3's CSM exchange.
	// Zero until a CSM has actually been received.
	PeerMaxMessageSize uint32
	PeerBlockWise      bool
	csmReceived        bool

	LastActivity  coap.Tick
	LastKeepalive coap.Tick
}

// New creates a Session in state Established (the default for a
// connectionless UDP peer; stream transports advance through
// Connecting and Handshake explicitly via SetState).
func New(id uint64, peer transport.Transport, raddr net.Addr, clock coap.Clock, rnd coap.Rand, dedupCapacity int, dedupTTL coap.Tick) *Session {
	return &Session{
		ID:           id,
		XID:          xid.New(),
		Peer:         peer,
		Raddr:        raddr,
		state:        Established,
		mid:          NewMIDAllocator(rnd),
		rand:         rnd,
		dedup:        NewDedup(dedupCapacity, dedupTTL),
		tokens:       make(map[string]uint16),
		reserved:     make(map[string]struct{}),
		LastActivity: clock.Now(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// SetState transitions the session, spec section 4.3's lifecycle
// state machine. It does not validate the transition: the endpoint
// dispatch layer is responsible for only issuing legal ones.
func (s *Session) SetState(state State) {
	s.state = state
}

// NextMessageID allocates the next outbound message ID.
func (s *Session) NextMessageID() uint16 {
	return s.mid.Next()
}

// NewToken allocates a fresh request token of length n and records it
// as outstanding under messageID, retrying on the astronomically
// unlikely collision with an already-open token.
func (s *Session) NewToken(n int, messageID uint16) []byte {
	for {
		tok := s.rand.Token(n)
		key := hex.EncodeToString(tok)
		if _, exists := s.tokens[key]; exists {
			continue
		}
		if _, reserved := s.reserved[key]; reserved {
			continue
		}
		s.tokens[key] = messageID
		return tok
	}
}

// OpenMessageID reports the message ID a still-outstanding token was
// sent with, spec section 4.4's token correlation.
func (s *Session) OpenMessageID(token []byte) (uint16, bool) {
	mid, ok := s.tokens[hex.EncodeToString(token)]
	return mid, ok
}

// CloseToken forgets a token once its response has arrived or the
// request was cancelled.
func (s *Session) CloseToken(token []byte) {
	delete(s.tokens, hex.EncodeToString(token))
}

// OpenTokens returns every outstanding token, for cancel-session
// cleanup.
func (s *Session) OpenTokens() [][]byte {
	out := make([][]byte, 0, len(s.tokens))
	for k := range s.tokens {
		b, err := hex.DecodeString(k)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ReserveToken claims token for a long-lived registration outside the
// normal request/response lifecycle, such as an observe subscription.
// It returns false if the token is already in use, either as an
// outstanding request token or a prior reservation.
func (s *Session) ReserveToken(token []byte) bool {
	key := hex.EncodeToString(token)
	if _, exists := s.tokens[key]; exists {
		return false
	}
	if _, exists := s.reserved[key]; exists {
		return false
	}
	s.reserved[key] = struct{}{}
	return true
}

// IsReserved reports whether token was claimed with ReserveToken and
// not yet released.
func (s *Session) IsReserved(token []byte) bool {
	_, ok := s.reserved[hex.EncodeToString(token)]
	return ok
}

// ReleaseToken frees a token claimed with ReserveToken, making it
// available again for NewToken or a future reservation.
func (s *Session) ReleaseToken(token []byte) {
	delete(s.reserved, hex.EncodeToString(token))
}

// Dedup returns the session's retransmission dedup cache.
func (s *Session) Dedup() *Dedup {
	return s.dedup
}

// Touch records activity at now, resetting the idle timer used for
// keepalive and session eviction, spec section 4.3.
func (s *Session) Touch(now coap.Tick) {
	s.LastActivity = now
}

// ReceiveCSM records the peer's negotiated stream parameters, spec
// section 4.3's CSM exchange. maxMessageSize of 0 means the peer
// omitted the option and the RFC 8323 default applies.
func (s *Session) ReceiveCSM(maxMessageSize uint32, blockWise bool) {
	if maxMessageSize == 0 {
		maxMessageSize = coap.DefaultMTU
	}
	s.PeerMaxMessageSize = maxMessageSize
	s.PeerBlockWise = blockWise
	s.csmReceived = true
}

// CSMReceived reports whether the peer's CSM has arrived yet.
func (s *Session) CSMReceived() bool {
	return s.csmReceived
}
