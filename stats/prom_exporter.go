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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Counters is the flattened counter map served by JSONStats's
// /counters endpoint and consumed by FetchCounters/PrometheusExporter.
type Counters map[string]int64

// FetchCounters fetches and decodes the counters map from a running
// JSONStats HTTP server at addr (e.g. "http://localhost:8888").
func FetchCounters(addr string) (Counters, error) {
	counters := make(Counters)
	c := http.Client{Timeout: 2 * time.Second}

	resp, err := c.Get(fmt.Sprintf("%s/counters", addr))
	if err != nil {
		return counters, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return counters, err
	}
	err = json.Unmarshal(b, &counters)
	return counters, err
}

// PrometheusExporter periodically scrapes a JSONStats endpoint running
// in the same process and republishes the counters as Prometheus
// gauges on /metrics. It is a separate reporter rather than a
// replacement for JSONStats, following the two-reporters-one-source
// split the pack uses between its JSON and Prometheus stats servers.
type PrometheusExporter struct {
	registry   *prometheus.Registry
	listenAddr string
	sourceAddr string
	interval   time.Duration
}

// NewPrometheusExporter creates an exporter that scrapes sourceAddr
// (a JSONStats server) every scrapeInterval and serves the result as
// Prometheus metrics on listenAddr.
func NewPrometheusExporter(listenAddr, sourceAddr string, scrapeInterval time.Duration) *PrometheusExporter {
	return &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		listenAddr: listenAddr,
		sourceAddr: sourceAddr,
		interval:   scrapeInterval,
	}
}

// Start runs the scrape loop and the /metrics HTTP server. It blocks.
func (e *PrometheusExporter) Start() {
	go func() {
		for {
			e.scrapeMetrics()
			time.Sleep(e.interval)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Infof("stats: starting prometheus exporter on %s", e.listenAddr)
	log.Fatal(http.ListenAndServe(e.listenAddr, mux))
}

func (e *PrometheusExporter) scrapeMetrics() {
	counters, err := FetchCounters(e.sourceAddr)
	if err != nil {
		log.Errorf("stats: failed to fetch counters from %s: %v", e.sourceAddr, err)
		return
	}
	for mkey, mval := range counters {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coap_" + flattenKey(mkey),
			Help: mkey,
		})
		if err := e.registry.Register(g); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				g = are.ExistingCollector.(prometheus.Gauge)
			} else {
				log.Errorf("stats: failed to register metric %s: %v", mkey, err)
				continue
			}
		}
		g.Set(float64(mval))
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "=", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}
