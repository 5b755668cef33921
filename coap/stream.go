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

import "fmt"

// MarshalStream encodes m using the TCP/TLS length-delimited framing
// (spec section 4.1, RFC 8323 section 3.2) and returns the extended
// buffer. Type and MessageID are not part of this framing and are
// ignored.
func MarshalStream(buf []byte, m *Message) ([]byte, error) {
	if len(m.Token) > MaxTokenLen {
		return nil, fmt.Errorf("%w: token length %d exceeds %d", ErrFormat, len(m.Token), MaxTokenLen)
	}

	body, err := appendOptions(nil, m.Options)
	if err != nil {
		return nil, err
	}
	if len(m.Payload) > 0 {
		body = append(body, 0xFF)
		body = append(body, m.Payload...)
	}

	length := len(m.Token) + len(body)
	lenNibble, lenExt := streamLenNibble(length)

	buf = append(buf, lenNibble<<4|uint8(len(m.Token)))
	buf = append(buf, lenExt...)
	buf = append(buf, byte(m.Code))
	buf = append(buf, m.Token...)
	buf = append(buf, body...)
	return buf, nil
}

// streamLenNibble picks the 4-bit length nibble and the 1/2/4 extended
// length bytes per RFC 8323 section 3.2: the extended ranges add 13,
// 269 and 65805 respectively.
func streamLenNibble(length int) (nibble uint8, ext []byte) {
	switch {
	case length < 13:
		return uint8(length), nil
	case length < 269:
		v := length - 13
		return 13, []byte{byte(v)}
	case length < 65805:
		v := length - 269
		return 14, []byte{byte(v >> 8), byte(v)}
	default:
		v := uint32(length - 65805)
		return 15, []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// StreamFrameHeaderLen returns the number of bytes of buf that make up
// the fixed-plus-extended length header, or 0 if buf does not yet
// contain enough bytes to know. It never returns an error: a
// genuinely malformed length nibble (15 with an implausible value is
// still well-formed per the grammar) is caught later by
// ParseStreamFrame.
func StreamFrameHeaderLen(buf []byte) int {
	if len(buf) < 1 {
		return 0
	}
	switch buf[0] >> 4 {
	case 13:
		if len(buf) < 2 {
			return 0
		}
		return 2
	case 14:
		if len(buf) < 3 {
			return 0
		}
		return 3
	case 15:
		if len(buf) < 5 {
			return 0
		}
		return 5
	default:
		return 1
	}
}

// ParseStreamFrame attempts to decode one length-delimited frame from
// the front of buf. It returns (nil, 0, nil) when buf does not yet
// hold a complete frame -- the caller (the session's read buffer) must
// accumulate more bytes from recv() and retry, mirroring how the
// datagram codec never blocks and how part5's apdu.Unmarshal supports
// resuming a partial read.
func ParseStreamFrame(buf []byte) (msg *Message, consumed int, err error) {
	headerLen := StreamFrameHeaderLen(buf)
	if headerLen == 0 {
		return nil, 0, nil
	}

	lenNibble := buf[0] >> 4
	tkl := int(buf[0] & 0x0f)
	if tkl > MaxTokenLen {
		return nil, 0, fmt.Errorf("%w: reserved token length %d", ErrFormat, tkl)
	}

	var length int
	switch lenNibble {
	case 13:
		length = int(buf[1]) + 13
	case 14:
		length = int(buf[1])<<8 | int(buf[2]) + 269
	case 15:
		length = int(uint32(buf[1])<<24|uint32(buf[2])<<16|uint32(buf[3])<<8|uint32(buf[4])) + 65805
	default:
		length = int(lenNibble)
	}

	// +1 for the code byte that follows the length header.
	total := headerLen + 1 + length
	if len(buf) < total {
		return nil, 0, nil
	}

	pos := headerLen
	code := Code(buf[pos])
	pos++

	if pos+tkl > total {
		return nil, 0, fmt.Errorf("%w: truncated token", ErrFormat)
	}
	m := &Message{Code: code}
	if tkl > 0 {
		m.Token = append([]byte(nil), buf[pos:pos+tkl]...)
	}
	pos += tkl

	opts, consumedOpts, sawMarker, err := parseOptions(buf[pos:total])
	if err != nil {
		return nil, 0, err
	}
	m.Options = opts
	pos += consumedOpts

	if sawMarker {
		if pos >= total {
			return nil, 0, fmt.Errorf("%w: payload marker with no payload", ErrFormat)
		}
		m.Payload = append([]byte(nil), buf[pos:total]...)
	}
	return m, total, nil
}
