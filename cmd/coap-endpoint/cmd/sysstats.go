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
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/facebookincubator/coap/stats"
)

// collectProcessStats samples this process's own RSS and CPU usage
// and records them on st, the same process/cpu/mem gathering
// ptp/sptp/client.SysStats.CollectRuntimeStats does, scoped down to
// just the fields the daemon's /counters endpoint reports.
func collectProcessStats(st *stats.JSONStats, interval time.Duration) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warningf("sysstats: opening self process handle: %v", err)
		return
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		st.SetProcessRSS(mem.RSS)
	} else {
		log.Debugf("sysstats: reading memory info: %v", err)
	}
	if pct, err := proc.Percent(interval); err == nil {
		st.SetProcessCPUPercent(pct)
	} else {
		log.Debugf("sysstats: reading cpu percent: %v", err)
	}
}
