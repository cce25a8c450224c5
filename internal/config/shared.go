// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package config loads the YAML-driven node/hub configuration (spec §4.I),
// resolved through CLI flags/env by the caller before the path reaches
// LoadNodeConfig/LoadHubConfig.
package config

import "fmt"

// TransportInfo selects and configures the opaque-packet transport
// carrying the stack's bottom-most bytes (spec §4.N).
type TransportInfo struct {
	// Kind is "pipe" or "tcp".
	Kind string `yaml:"kind"`
	// Address is where a "tcp" node dials out to.
	Address string `yaml:"address"`
	// Listen is where a "tcp" hub listens; unused by nodes.
	Listen string `yaml:"listen"`
}

func (t TransportInfo) validate() error {
	switch t.Kind {
	case "pipe", "tcp":
	default:
		return fmt.Errorf("transport.kind must be \"pipe\" or \"tcp\", got %q", t.Kind)
	}
	return nil
}

// IPInfo is the §4.H stack-level IP configuration a config file may
// override; zero values let the stack builder apply its own defaults.
type IPInfo struct {
	MTU int `yaml:"mtu"`
}

// GattlinkInfo is the §4.E window-size configuration.
type GattlinkInfo struct {
	DesiredTxWindow int `yaml:"desired_tx_window"`
	DesiredRxWindow int `yaml:"desired_rx_window"`
}

// DTLSInfo configures the §4.G DTLS element; an empty Role disables DTLS
// for this stack.
type DTLSInfo struct {
	Role        string `yaml:"role"` // "", "client", or "server"
	PSKIdentity string `yaml:"psk_identity"`
	PSKKeyHex   string `yaml:"psk_key_hex"`
}

func (d DTLSInfo) validate() error {
	switch d.Role {
	case "", "client", "server":
	default:
		return fmt.Errorf("dtls.role must be \"client\" or \"server\", got %q", d.Role)
	}
	if d.Role == "client" && d.PSKIdentity == "" {
		return fmt.Errorf("dtls.psk_identity is required when dtls.role is \"client\"")
	}
	if d.Role != "" && d.PSKKeyHex == "" {
		return fmt.Errorf("dtls.psk_key_hex is required when dtls.role is set")
	}
	return nil
}

// LoggingInfo configures §4.J's logger construction.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (l *LoggingInfo) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

// MetricsInfo configures the optional §4.K Prometheus exporter; an empty
// Listen leaves metrics disabled.
type MetricsInfo struct {
	Listen string `yaml:"listen"`
}
