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

package stats

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/coap/coap"
)

// JSONStats is what we report as stats via the /counters HTTP endpoint.
type JSONStats struct {
	report counters

	counters
}

// NewJSONStats returns a new JSONStats ready to record.
func NewJSONStats() *JSONStats {
	s := &JSONStats{}
	s.init()
	s.report.init()
	return s
}

// Start runs the counters HTTP server on addr (e.g. ":8888").
func (s *JSONStats) Start(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/counters", s.handleRequest)
	log.Infof("stats: starting json counters server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("stats: failed to start listener: %v", err)
	}
}

// Snapshot copies the live values into report so they can be read
// consistently while the live counters keep mutating underneath.
func (s *JSONStats) Snapshot() {
	s.rx.copy(&s.report.rx)
	s.tx.copy(&s.report.tx)
	s.rtt.copy(s.report.rtt)
	s.report.mean, s.report.variance = s.rtt.meanVariance()
	s.report.sessionsOpened = atomic.LoadInt64(&s.sessionsOpened)
	s.report.sessionsClosed = atomic.LoadInt64(&s.sessionsClosed)
	s.report.sessionCount = atomic.LoadInt64(&s.sessionCount)
	s.report.retransmits = atomic.LoadInt64(&s.retransmits)
	s.report.timeouts = atomic.LoadInt64(&s.timeouts)
	s.report.resets = atomic.LoadInt64(&s.resets)
	s.report.dedupHits = atomic.LoadInt64(&s.dedupHits)
	s.report.dedupMisses = atomic.LoadInt64(&s.dedupMisses)
	s.report.queueDepth = atomic.LoadInt64(&s.queueDepth)
	s.report.processRSS = atomic.LoadInt64(&s.processRSS)
	s.report.processCPUPerMille = atomic.LoadInt64(&s.processCPUPerMille)
}

func (s *JSONStats) handleRequest(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(s.report.toMap())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("stats: failed to reply: %v", err)
	}
}

// Reset atomically sets all the counters to 0.
func (s *JSONStats) Reset() {
	s.reset()
}

// IncRX atomically adds 1 to the counter for a received message code.
func (s *JSONStats) IncRX(c coap.Code) { s.rx.inc(int(c)) }

// IncTX atomically adds 1 to the counter for a sent message code.
func (s *JSONStats) IncTX(c coap.Code) { s.tx.inc(int(c)) }

// IncSessionsOpened atomically adds 1 to the counter.
func (s *JSONStats) IncSessionsOpened() {
	atomic.AddInt64(&s.sessionsOpened, 1)
	atomic.AddInt64(&s.sessionCount, 1)
}

// IncSessionsClosed atomically adds 1 to the counter.
func (s *JSONStats) IncSessionsClosed() {
	atomic.AddInt64(&s.sessionsClosed, 1)
	atomic.AddInt64(&s.sessionCount, -1)
}

// IncRetransmits atomically adds 1 to the counter.
func (s *JSONStats) IncRetransmits() { atomic.AddInt64(&s.retransmits, 1) }

// IncTimeouts atomically adds 1 to the counter.
func (s *JSONStats) IncTimeouts() { atomic.AddInt64(&s.timeouts, 1) }

// IncResets atomically adds 1 to the counter.
func (s *JSONStats) IncResets() { atomic.AddInt64(&s.resets, 1) }

// IncDedupHits atomically adds 1 to the counter.
func (s *JSONStats) IncDedupHits() { atomic.AddInt64(&s.dedupHits, 1) }

// IncDedupMisses atomically adds 1 to the counter.
func (s *JSONStats) IncDedupMisses() { atomic.AddInt64(&s.dedupMisses, 1) }

// SetQueueDepth atomically sets the retransmission queue depth.
func (s *JSONStats) SetQueueDepth(depth int64) { atomic.StoreInt64(&s.queueDepth, depth) }

// SetSessionCount atomically sets the number of live sessions.
func (s *JSONStats) SetSessionCount(count int64) { atomic.StoreInt64(&s.sessionCount, count) }

// ObserveRTT records one round-trip sample, in nanoseconds.
func (s *JSONStats) ObserveRTT(ns float64) { s.rtt.observe(ns) }

// SetProcessRSS atomically sets the daemon process's resident set
// size, in bytes, as reported by gopsutil. Not part of the Stats
// interface: only cmd/coap-endpoint, which owns the process being
// measured, calls this.
func (s *JSONStats) SetProcessRSS(bytes uint64) { atomic.StoreInt64(&s.processRSS, int64(bytes)) }

// SetProcessCPUPercent atomically sets the daemon process's CPU
// utilization, stored as percent*10 to keep one decimal digit of
// precision in an integer counter.
func (s *JSONStats) SetProcessCPUPercent(pct float64) {
	atomic.StoreInt64(&s.processCPUPerMille, int64(pct*10))
}
