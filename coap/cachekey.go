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
	"hash"
	"sort"

	"github.com/cespare/xxhash"
)

// CacheKey is a deterministic hash of the cache-relevant parts of a
// request, spec section 4.1: request code, URI-Host, URI-Port,
// URI-Path segments (in order), URI-Query segments (sorted) and
// Content-Format, minus any option numbers the caller wants ignored.
// Two requests with equal CacheKeys are semantically equivalent for
// caching purposes.
type CacheKey uint64

// Cache computes the CacheKey for a request, using ignore to drop any
// option numbers that must not affect equivalence (e.g. a proxy's own
// bookkeeping options). The hash is order-stable for URI-Path (options
// are already transmitted/stored in ascending, hence path, order) and
// order-independent for URI-Query, which is sorted before hashing.
func Cache(req *Message, ignore *Filter) CacheKey {
	h := xxhash.New()
	h.Write([]byte{byte(req.Code)})

	var queries [][]byte
	for _, opt := range req.Options {
		if ignore != nil && ignore.Has(opt.Number) {
			continue
		}
		switch opt.Number {
		case OptionURIQuery:
			queries = append(queries, opt.Value)
			continue
		case OptionURIHost, OptionURIPort, OptionURIPath, OptionContentFormat:
			writeOption(h, opt)
		}
	}

	sort.Slice(queries, func(i, j int) bool {
		return string(queries[i]) < string(queries[j])
	})
	for _, q := range queries {
		writeOption(h, Option{Number: OptionURIQuery, Value: q})
	}

	return CacheKey(h.Sum64())
}

func writeOption(h hash.Hash64, opt Option) {
	var numBuf [2]byte
	numBuf[0] = byte(opt.Number >> 8)
	numBuf[1] = byte(opt.Number)
	h.Write(numBuf[:])
	h.Write(opt.Value)
	h.Write([]byte{0}) // separator so adjacent values can't collide
}
