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

/*
Package stats implements statistics collection and reporting for a
CoAP endpoint. It is used by the endpoint package to report internal
counters such as message counts per code, retransmissions, timeouts,
and session churn.
*/
package stats

import (
	"fmt"
	"strings"
	"sync"

	"github.com/eclesh/welford"

	"github.com/facebookincubator/coap/coap"
)

// Stats is the metric collection interface the endpoint reports into,
// implemented by JSONStats. PrometheusExporter does not implement it:
// it republishes the counters a JSONStats server already serves.
type Stats interface {
	// Start starts a stat reporter. Use this for passive reporters.
	Start(addr string)

	// Snapshot copies the live values so they can be reported atomically.
	Snapshot()

	// Reset atomically sets all the counters to 0.
	Reset()

	// IncRX atomically adds 1 to the counter for a received message code.
	IncRX(c coap.Code)

	// IncTX atomically adds 1 to the counter for a sent message code.
	IncTX(c coap.Code)

	// IncSessionsOpened atomically adds 1 to the counter.
	IncSessionsOpened()

	// IncSessionsClosed atomically adds 1 to the counter.
	IncSessionsClosed()

	// IncRetransmits atomically adds 1 to the counter.
	IncRetransmits()

	// IncTimeouts atomically adds 1 to the counter, a Confirmable
	// message giving up after MaxRetransmit resends.
	IncTimeouts()

	// IncResets atomically adds 1 to the counter, a peer Reset
	// received for an outstanding message.
	IncResets()

	// IncDedupHits atomically adds 1 to the counter, a retransmitted
	// request matched against the dedup cache.
	IncDedupHits()

	// IncDedupMisses atomically adds 1 to the counter.
	IncDedupMisses()

	// SetQueueDepth atomically sets the retransmission queue depth.
	SetQueueDepth(depth int64)

	// SetSessionCount atomically sets the number of live sessions.
	SetSessionCount(count int64)

	// ObserveRTT records one round-trip sample (in nanoseconds) into
	// the running mean/variance estimator.
	ObserveRTT(ns float64)
}

// syncMapInt64 is a mutex-guarded map of int64 counters keyed by an
// arbitrary small int (a coap.Code, typically).
type syncMapInt64 struct {
	sync.Mutex
	m map[int]int64
}

func (s *syncMapInt64) init() {
	s.m = make(map[int]int64)
}

func (s *syncMapInt64) keys() []int {
	s.Lock()
	defer s.Unlock()
	keys := make([]int, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys
}

func (s *syncMapInt64) load(key int) int64 {
	s.Lock()
	defer s.Unlock()
	return s.m[key]
}

func (s *syncMapInt64) inc(key int) {
	s.Lock()
	s.m[key]++
	s.Unlock()
}

func (s *syncMapInt64) store(key int, value int64) {
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

func (s *syncMapInt64) copy(dst *syncMapInt64) {
	for _, k := range s.keys() {
		dst.store(k, s.load(k))
	}
}

func (s *syncMapInt64) reset() {
	s.Lock()
	for k := range s.m {
		s.m[k] = 0
	}
	s.Unlock()
}

// rttStats guards a welford online mean/variance estimator with a
// mutex, since welford.Stats is not safe for concurrent use on its own.
type rttStats struct {
	sync.Mutex
	w *welford.Stats
}

func newRTTStats() *rttStats {
	return &rttStats{w: welford.New()}
}

func (r *rttStats) observe(ns float64) {
	r.Lock()
	r.w.Add(ns)
	r.Unlock()
}

func (r *rttStats) meanVariance() (mean, variance float64) {
	r.Lock()
	defer r.Unlock()
	return r.w.Mean(), r.w.Variance()
}

func (r *rttStats) copy(dst *rttStats) {
	r.Lock()
	w := *r.w
	r.Unlock()
	dst.Lock()
	*dst.w = w
	dst.Unlock()
}

// counters holds every atomic/mutex-guarded counter backing a Stats
// implementation. It is embedded twice by JSONStats: once as the live,
// constantly-mutated set and once as the last Snapshot, so a reporter
// never reads a value that is being concurrently updated mid-request.
type counters struct {
	rx              syncMapInt64
	tx              syncMapInt64
	sessionsOpened  int64
	sessionsClosed  int64
	retransmits     int64
	timeouts        int64
	resets          int64
	dedupHits       int64
	dedupMisses     int64
	queueDepth      int64
	sessionCount    int64
	processRSS      int64
	processCPUPerMille int64 // CPU percent * 10, see JSONStats.SetProcessCPUPercent
	rtt             *rttStats
	mean, variance  float64 // only populated on the `report` copy, see JSONStats.Snapshot
}

func (c *counters) init() {
	c.rx.init()
	c.tx.init()
	c.rtt = newRTTStats()
}

func (c *counters) reset() {
	c.rx.reset()
	c.tx.reset()
	c.sessionsOpened = 0
	c.sessionsClosed = 0
	c.retransmits = 0
	c.timeouts = 0
	c.resets = 0
	c.dedupHits = 0
	c.dedupMisses = 0
	c.queueDepth = 0
	c.sessionCount = 0
	c.processRSS = 0
	c.processCPUPerMille = 0
	c.rtt = newRTTStats()
}

// toMap flattens the counters into a string-keyed map, the shape both
// the JSON HTTP endpoint and the Prometheus scrape-and-republish
// exporter consume.
func (c *counters) toMap() map[string]int64 {
	res := make(map[string]int64)

	for _, code := range c.rx.keys() {
		v := c.rx.load(code)
		res[fmt.Sprintf("rx.%s", codeName(code))] = v
	}
	for _, code := range c.tx.keys() {
		v := c.tx.load(code)
		res[fmt.Sprintf("tx.%s", codeName(code))] = v
	}

	res["sessions.opened"] = c.sessionsOpened
	res["sessions.closed"] = c.sessionsClosed
	res["sessions.live"] = c.sessionCount
	res["retransmits"] = c.retransmits
	res["timeouts"] = c.timeouts
	res["resets"] = c.resets
	res["dedup.hits"] = c.dedupHits
	res["dedup.misses"] = c.dedupMisses
	res["queue.depth"] = c.queueDepth
	res["rtt.mean_ns"] = int64(c.mean)
	res["rtt.variance_ns2"] = int64(c.variance)
	res["process.rss_bytes"] = c.processRSS
	res["process.cpu_pct_x10"] = c.processCPUPerMille

	return res
}

func codeName(code int) string {
	return strings.ReplaceAll(coap.Code(code).String(), ".", "_")
}
