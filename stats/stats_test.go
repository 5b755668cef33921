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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/coap/coap"
)

func TestSyncMapInt64Keys(t *testing.T) {
	s := syncMapInt64{}
	s.init()

	expected := []int{24, 42}
	for _, i := range expected {
		s.inc(i)
	}

	found := 0
	for _, k := range s.keys() {
		for _, i := range expected {
			if i == k {
				found++
				break
			}
		}
	}
	require.Equal(t, len(expected), found)
}

func TestSyncMapInt64Copy(t *testing.T) {
	s := syncMapInt64{}
	s.init()
	s.store(1, 1)
	require.Equal(t, int64(1), s.load(1))

	dst := syncMapInt64{}
	dst.init()
	s.copy(&dst)
	require.Equal(t, int64(1), dst.load(1))
}

func TestCountersToMap(t *testing.T) {
	c := counters{}
	c.init()

	c.rx.store(int(coap.GET), 3)
	c.tx.store(int(coap.Content), 3)
	c.sessionsOpened = 2
	c.sessionsClosed = 1
	c.retransmits = 5
	c.timeouts = 1
	c.resets = 1
	c.dedupHits = 4
	c.dedupMisses = 9
	c.queueDepth = 2
	c.sessionCount = 1
	c.processRSS = 4096
	c.processCPUPerMille = 55

	m := c.toMap()
	require.Equal(t, int64(3), m["rx.0_01"])
	require.Equal(t, int64(3), m["tx.2_05"])
	require.Equal(t, int64(2), m["sessions.opened"])
	require.Equal(t, int64(1), m["sessions.closed"])
	require.Equal(t, int64(1), m["sessions.live"])
	require.Equal(t, int64(5), m["retransmits"])
	require.Equal(t, int64(1), m["timeouts"])
	require.Equal(t, int64(1), m["resets"])
	require.Equal(t, int64(4), m["dedup.hits"])
	require.Equal(t, int64(9), m["dedup.misses"])
	require.Equal(t, int64(2), m["queue.depth"])
	require.Equal(t, int64(4096), m["process.rss_bytes"])
	require.Equal(t, int64(55), m["process.cpu_pct_x10"])
}

func TestRTTStatsMeanVariance(t *testing.T) {
	r := newRTTStats()
	r.observe(10)
	r.observe(20)
	r.observe(30)
	mean, variance := r.meanVariance()
	require.Equal(t, float64(20), mean)
	require.Greater(t, variance, 0.0)
}
