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
	"errors"
	"fmt"
	"sort"
)

// ErrFormat signals an ill-formed PDU per spec section 4.1.
var ErrFormat = errors.New("coap: FORMAT_ERROR")

// Option is a single CoAP option, RFC 7252 section 3.1.
type Option struct {
	Number uint16
	Value  []byte
}

// Options is an ordered list of Option, always kept sorted by Number
// (stable with respect to insertion order for repeated numbers) so
// that encoding is deterministic, per spec section 8.
type Options []Option

// Add appends an option and restores ascending order.
func (o Options) Add(number uint16, value []byte) Options {
	o = append(o, Option{Number: number, Value: value})
	sort.SliceStable(o, func(i, j int) bool { return o[i].Number < o[j].Number })
	return o
}

// Get returns the value of the first option matching number.
func (o Options) Get(number uint16) ([]byte, bool) {
	for _, opt := range o {
		if opt.Number == number {
			return opt.Value, true
		}
	}
	return nil, false
}

// GetAll returns every value for a repeatable option, in order.
func (o Options) GetAll(number uint16) [][]byte {
	var values [][]byte
	for _, opt := range o {
		if opt.Number == number {
			values = append(values, opt.Value)
		}
	}
	return values
}

// Filter is a compact membership set over the CoAP option number
// space (spec section 2: "Options filter"). Option numbers are uint16,
// so a fixed bitset of 1024 64-bit words (8KiB, one bit per number
// 0..65535) covers every one of them with an O(1) lookup; there is no
// separate structure for large numbers.
type Filter struct {
	bits [1024]uint64 // covers option numbers 0..65535
}

// NewKnownOptionsFilter returns a Filter seeded with the option
// numbers this core itself understands or the caller otherwise
// declares as "known" (so that they never trigger BAD_OPTION).
func NewKnownOptionsFilter(numbers ...uint16) *Filter {
	f := &Filter{}
	for _, n := range numbers {
		f.Set(n)
	}
	return f
}

// Set marks an option number as known.
func (f *Filter) Set(number uint16) {
	f.bits[number/64] |= 1 << (number % 64)
}

// Clear unmarks an option number.
func (f *Filter) Clear(number uint16) {
	f.bits[number/64] &^= 1 << (number % 64)
}

// Has reports whether number was previously Set.
func (f *Filter) Has(number uint16) bool {
	return f.bits[number/64]&(1<<(number%64)) != 0
}

// UnknownCriticals returns, in ascending order, every critical option
// number present in opts that is not in the filter. An empty request
// options list has no unknown criticals by definition; a non-empty
// return value means the caller must reply 4.02 Bad Option per spec
// section 4.4 step 3.
func (f *Filter) UnknownCriticals(opts Options) []uint16 {
	var unknown []uint16
	for _, opt := range opts {
		if IsCritical(opt.Number) && !f.Has(opt.Number) {
			unknown = append(unknown, opt.Number)
		}
	}
	return unknown
}

// extendedNibble decodes one of the 4-bit nibbles used for both the
// option delta and the option length, per RFC 7252 section 3.1. It
// returns the final numeric value and how many extra bytes (0, 1 or
// 2) must follow the header byte.
func extendedNibble(nibble byte, buf []byte) (value int, extra int, err error) {
	switch {
	case nibble <= 12:
		return int(nibble), 0, nil
	case nibble == 13:
		if len(buf) < 1 {
			return 0, 0, ErrFormat
		}
		return int(buf[0]) + 13, 1, nil
	case nibble == 14:
		if len(buf) < 2 {
			return 0, 0, ErrFormat
		}
		return int(buf[0])<<8 | int(buf[1]) + 269, 2, nil
	default: // 15
		return 0, 0, ErrFormat
	}
}

// encodeNibble picks the 4-bit nibble and extension bytes for a delta
// or length value, per RFC 7252 section 3.1.
func encodeNibble(value int) (nibble byte, ext []byte) {
	switch {
	case value < 13:
		return byte(value), nil
	case value < 269:
		return 13, []byte{byte(value - 13)}
	default:
		v := value - 269
		return 14, []byte{byte(v >> 8), byte(v)}
	}
}

// appendOptions encodes opts (assumed already sorted ascending by
// Number) into buf, returning the extended buffer. Options must be
// canonical: re-encoding a decoded list must be byte-identical.
func appendOptions(buf []byte, opts Options) ([]byte, error) {
	var running int
	for _, opt := range opts {
		delta := int(opt.Number) - running
		if delta < 0 {
			return nil, fmt.Errorf("coap: options out of order: %d after %d", opt.Number, running)
		}
		running = int(opt.Number)

		deltaNibble, deltaExt := encodeNibble(delta)
		lenNibble, lenExt := encodeNibble(len(opt.Value))
		buf = append(buf, deltaNibble<<4|lenNibble)
		buf = append(buf, deltaExt...)
		buf = append(buf, lenExt...)
		buf = append(buf, opt.Value...)
	}
	return buf, nil
}

// parseOptions decodes the option sequence starting at buf, stopping
// at the payload marker (0xFF) or end of buffer. It returns the
// decoded options, the number of bytes consumed, and whether a
// payload marker was seen.
func parseOptions(buf []byte) (opts Options, consumed int, sawMarker bool, err error) {
	var running int
	pos := 0
	for pos < len(buf) {
		first := buf[pos]
		if first == 0xFF {
			return opts, pos + 1, true, nil
		}

		deltaNibble := first >> 4
		lenNibble := first & 0x0f
		pos++

		if deltaNibble == 15 || lenNibble == 15 {
			return nil, 0, false, ErrFormat
		}

		delta, dExtra, err := extendedNibble(deltaNibble, buf[pos:])
		if err != nil {
			return nil, 0, false, err
		}
		pos += dExtra

		length, lExtra, err := extendedNibble(lenNibble, buf[pos:])
		if err != nil {
			return nil, 0, false, err
		}
		pos += lExtra

		running += delta
		if running > 0xFFFF {
			return nil, 0, false, ErrFormat
		}
		if pos+length > len(buf) {
			return nil, 0, false, ErrFormat
		}

		value := make([]byte, length)
		copy(value, buf[pos:pos+length])
		opts = append(opts, Option{Number: uint16(running), Value: value})
		pos += length
	}
	return opts, pos, false, nil
}
