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

// Package config loads cmd/coap-endpoint's on-disk configuration,
// mirroring how the teacher's calnex/config package loads a
// structured INI file into Go values.
package config

import (
	"fmt"
	"time"

	"github.com/go-ini/ini"

	"github.com/facebookincubator/coap/endpoint"
)

// Daemon is the top-level on-disk configuration for cmd/coap-endpoint,
// an [endpoint] section mapped directly onto endpoint.Config plus the
// listener addresses that aren't part of the library's own Config.
type Daemon struct {
	// Listen is the UDP address coap-endpoint binds for datagram
	// traffic, for example "0.0.0.0:5683".
	Listen string `ini:"listen"`
	// ListenTCP is the TCP address it binds for stream traffic;
	// empty disables the stream listener.
	ListenTCP string `ini:"listen_tcp"`
	// StatsListen is the address the JSON stats endpoint serves on.
	StatsListen string `ini:"stats_listen"`

	AckTimeout           time.Duration `ini:"ack_timeout"`
	AckRandomFactor      float64       `ini:"ack_random_factor"`
	MaxRetransmit        int           `ini:"max_retransmit"`
	NStart               int           `ini:"nstart"`
	MaxIdleSessions      int           `ini:"max_idle_sessions"`
	MaxHandshakeSessions int           `ini:"max_handshake_sessions"`
	SessionIdleTimeout   time.Duration `ini:"session_idle_timeout"`
	CSMTimeout           time.Duration `ini:"csm_timeout"`
	PingTimeout          time.Duration `ini:"ping_timeout"`
	DedupCapacity        int           `ini:"dedup_capacity"`
	DedupTTL             time.Duration `ini:"dedup_ttl"`
	QueueSize            int           `ini:"queue_size"`
	DSCP                 int           `ini:"dscp"`
	ImplVersion          string        `ini:"impl_version"`
}

// defaultImplVersion is reported in the CSM Impl-Version option on
// every stream session this daemon originates.
const defaultImplVersion = "1.0.0"

// DefaultDaemon returns a Daemon config with every listener address
// set but every endpoint.Config field left zero, so EndpointConfig's
// call to Check fills in the library defaults rather than duplicating
// them here.
func DefaultDaemon() *Daemon {
	return &Daemon{
		Listen:      fmt.Sprintf(":%d", 5683),
		StatsListen: ":4269",
		ImplVersion: defaultImplVersion,
	}
}

// EndpointConfig builds an endpoint.Config from d, applying Check so
// the returned Config is ready to pass to endpoint.NewContext.
func (d *Daemon) EndpointConfig() *endpoint.Config {
	cfg := &endpoint.Config{
		AckTimeout:           d.AckTimeout,
		AckRandomFactor:      d.AckRandomFactor,
		MaxRetransmit:        d.MaxRetransmit,
		NStart:               d.NStart,
		MaxIdleSessions:      d.MaxIdleSessions,
		MaxHandshakeSessions: d.MaxHandshakeSessions,
		SessionIdleTimeout:   d.SessionIdleTimeout,
		CSMTimeout:           d.CSMTimeout,
		PingTimeout:          d.PingTimeout,
		DedupCapacity:        d.DedupCapacity,
		DedupTTL:             d.DedupTTL,
		QueueSize:            d.QueueSize,
		DSCP:                 d.DSCP,
		ImplVersion:          d.ImplVersion,
	}
	return cfg.Check()
}

// FromINI reads an INI file at path and maps its [endpoint] section
// onto a Daemon built from DefaultDaemon, the same load-onto-defaults
// pattern calnex/config uses with ini.Load.
func FromINI(path string) (*Daemon, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %q: %w", path, err)
	}
	d := DefaultDaemon()
	if err := f.Section("endpoint").MapTo(d); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	if d.Listen == "" {
		return nil, fmt.Errorf("config: listen must be set")
	}
	return d, nil
}
