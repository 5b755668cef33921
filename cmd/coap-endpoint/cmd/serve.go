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
	"context"
	"net"
	"strings"
	"time"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/facebookincubator/coap/coap"
	conf "github.com/facebookincubator/coap/config"
	"github.com/facebookincubator/coap/endpoint"
	"github.com/facebookincubator/coap/session"
	"github.com/facebookincubator/coap/stats"
	"github.com/facebookincubator/coap/transport"
)

var serveConfigPath string
var servePromListen string

// statsReportInterval mirrors the teacher's MetricInterval: how often
// live counters are snapshotted into the reported view and reset.
const statsReportInterval = 10 * time.Second

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to an INI config file")
	serveCmd.Flags().StringVar(&servePromListen, "prometheus-listen", "", "address to serve /metrics on, scraping the JSON stats endpoint; empty disables it")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CoAP endpoint daemon",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := runServe(); err != nil {
			log.Fatal(err)
		}
	},
}

// sdNotify tells systemd the daemon is ready, mirroring the teacher's
// ptp/c4u.SdNotify.
func sdNotify() {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		log.Warningf("sd_notify failed: %v", err)
	} else if !supported {
		log.Debug("sd_notify not supported")
	} else {
		log.Info("sent sd_notify ready")
	}
}

func runServe() error {
	var d *conf.Daemon
	if serveConfigPath != "" {
		var err error
		d, err = conf.FromINI(serveConfigPath)
		if err != nil {
			return err
		}
	} else {
		d = conf.DefaultDaemon()
	}

	st := stats.NewJSONStats()
	cfg := d.EndpointConfig()
	c := endpoint.NewContext(cfg, coap.NewSystemClock(), coap.CryptoRand{}, echoHandler{})
	c.SetStats(st)

	sched, err := endpoint.NewScheduler()
	if err != nil {
		return err
	}
	if err := c.UseScheduler(sched); err != nil {
		return err
	}

	if d.Listen != "" {
		laddr, err := net.ResolveUDPAddr("udp", d.Listen)
		if err != nil {
			return err
		}
		udp, err := transport.ListenUDP(laddr)
		if err != nil {
			return err
		}
		if err := c.AddTransport(udp); err != nil {
			return err
		}
		log.Infof("listening for datagram traffic on %s", d.Listen)
	}
	if d.ListenTCP != "" {
		laddr, err := net.ResolveTCPAddr("tcp", d.ListenTCP)
		if err != nil {
			return err
		}
		l, err := transport.ListenTCP(laddr)
		if err != nil {
			return err
		}
		if err := c.AddListener(l); err != nil {
			return err
		}
		log.Infof("listening for stream traffic on %s", d.ListenTCP)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	if d.StatsListen != "" {
		eg.Go(func() error {
			st.Start(d.StatsListen)
			return nil
		})
		eg.Go(func() error {
			ticker := time.NewTicker(statsReportInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					collectProcessStats(st, statsReportInterval)
					st.Snapshot()
					st.Reset()
				}
			}
		})
		if servePromListen != "" {
			exp := stats.NewPrometheusExporter(servePromListen, "http://"+d.StatsListen, statsReportInterval)
			eg.Go(func() error {
				exp.Start()
				return nil
			})
		}
	}

	eg.Go(func() error {
		sdNotify()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if _, err := c.Process(time.Second); err != nil {
				return err
			}
		}
	})

	return eg.Wait()
}

// echoHandler is a minimal default resource so the daemon is useful
// out of the box without pulling in a resource-tree implementation: a
// GET gets its own payload echoed back in a 2.05, except that a GET of
// .well-known/core gets a one-link link-format document; any other
// method gets 4.05, and a message that is not a request gets no reply.
type echoHandler struct{}

func (echoHandler) Handle(req *coap.Message, _ *session.Session) (*coap.Message, error) {
	if !req.Code.IsRequest() {
		return nil, endpoint.ErrNoResponse
	}
	path := requestPath(req)
	if req.Code != coap.GET {
		return &coap.Message{Code: coap.MethodNotAllowed}, nil
	}
	if path == ".well-known/core" {
		resp := &coap.Message{Code: coap.Content, Payload: []byte("</echo>;rt=\"echo\"")}
		resp.Options = resp.Options.Add(coap.OptionContentFormat, []byte{40})
		return resp, nil
	}
	return &coap.Message{Code: coap.Content, Payload: req.Payload}, nil
}

func requestPath(m *coap.Message) string {
	segs := m.Options.GetAll(coap.OptionURIPath)
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = string(s)
	}
	return strings.Join(parts, "/")
}
