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

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facebookincubator/coap/stats"
)

// fetchCounters retrieves the JSON counters a cmd/coap-endpoint daemon
// serves on its stats listener's /counters endpoint, reusing the same
// client the Prometheus exporter scrapes with.
func fetchCounters(statsAddr string) (stats.Counters, error) {
	addr := statsAddr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	counters, err := stats.FetchCounters(addr)
	if err != nil {
		return nil, fmt.Errorf("coapcat: fetching counters from %s: %w", addr, err)
	}
	return counters, nil
}

// counterRow is one line of the counters table, also the shape
// gocsv.Marshal exports to CSV.
type counterRow struct {
	Key   string `csv:"key"`
	Value int64  `csv:"value"`
}

// formatCount renders a counter value for table/CSV output.
func formatCount(v int64) string {
	return fmt.Sprintf("%d", v)
}

// filterCounters keeps only the counters whose key starts with one of
// prefixes, sorted by key for stable output.
func filterCounters(counters stats.Counters, prefixes ...string) []counterRow {
	var rows []counterRow
	for k, v := range counters {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				rows = append(rows, counterRow{Key: k, Value: v})
				break
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}
