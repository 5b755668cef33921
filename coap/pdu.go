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

package coap

import (
	"encoding/binary"
	"fmt"
)

// Message is the in-memory representation of a CoAP PDU, shared by
// both wire framings. On reliable transports MessageID and Type are
// unused (the zero value) since RFC 8323 carries neither.
type Message struct {
	Version   uint8
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   Options
	Payload   []byte
}

// String returns a compact one-line description, in the style of the
// teacher's apdu.String() used for Trace logging.
func (m *Message) String() string {
	if m.Type > RST {
		return fmt.Sprintf("%s token=%#x mid=%#04x opts=%d payload=%dB",
			m.Code, m.Token, m.MessageID, len(m.Options), len(m.Payload))
	}
	return fmt.Sprintf("%s[%s] token=%#x mid=%#04x opts=%d payload=%dB",
		m.Type, m.Code, m.Token, m.MessageID, len(m.Options), len(m.Payload))
}

// IsEmpty reports whether the message is the special zero-length
// message used for pings (CON) and pongs (ACK), RFC 7252 section 4.3.
func (m *Message) IsEmpty() bool {
	return m.Code == Empty && len(m.Token) == 0 && len(m.Payload) == 0
}

const datagramHeaderSize = 4

// datagramHeaderByte0 packs version, type and token length, RFC 7252
// section 3.
func datagramHeaderByte0(version uint8, t Type, tkl int) byte {
	return version<<6 | uint8(t)<<4 | uint8(tkl)
}

// MarshalDatagram encodes m using the UDP/DTLS framing (spec section
// 4.1) and returns the extended buffer.
func MarshalDatagram(buf []byte, m *Message) ([]byte, error) {
	if len(m.Token) > MaxTokenLen {
		return nil, fmt.Errorf("%w: token length %d exceeds %d", ErrFormat, len(m.Token), MaxTokenLen)
	}
	version := m.Version
	if version == 0 {
		version = Version
	}

	head := [datagramHeaderSize]byte{}
	head[0] = datagramHeaderByte0(version, m.Type, len(m.Token))
	head[1] = byte(m.Code)
	binary.BigEndian.PutUint16(head[2:], m.MessageID)
	buf = append(buf, head[:]...)
	buf = append(buf, m.Token...)

	buf, err := appendOptions(buf, m.Options)
	if err != nil {
		return nil, err
	}

	if len(m.Payload) > 0 {
		buf = append(buf, 0xFF)
		buf = append(buf, m.Payload...)
	}
	return buf, nil
}

// UnmarshalDatagram decodes a single UDP/DTLS-framed PDU from buf. The
// entire buffer must be exactly one datagram; unlike the stream codec
// there is no length prefix to delimit it.
func UnmarshalDatagram(buf []byte) (*Message, error) {
	if len(buf) < datagramHeaderSize {
		return nil, fmt.Errorf("%w: datagram shorter than header", ErrFormat)
	}

	version := buf[0] >> 6
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}
	t := Type((buf[0] >> 4) & 0x3)
	tkl := int(buf[0] & 0x0f)
	if tkl > MaxTokenLen {
		return nil, fmt.Errorf("%w: reserved token length %d", ErrFormat, tkl)
	}

	m := &Message{
		Version:   version,
		Type:      t,
		Code:      Code(buf[1]),
		MessageID: binary.BigEndian.Uint16(buf[2:4]),
	}

	pos := datagramHeaderSize
	if pos+tkl > len(buf) {
		return nil, fmt.Errorf("%w: truncated token", ErrFormat)
	}
	if tkl > 0 {
		m.Token = append([]byte(nil), buf[pos:pos+tkl]...)
	}
	pos += tkl

	opts, consumed, sawMarker, err := parseOptions(buf[pos:])
	if err != nil {
		return nil, err
	}
	m.Options = opts
	pos += consumed

	if sawMarker {
		if pos >= len(buf) {
			return nil, fmt.Errorf("%w: payload marker with no payload", ErrFormat)
		}
		m.Payload = append([]byte(nil), buf[pos:]...)
	}
	return m, nil
}
