// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeConfig is a goldengate-node's full configuration (spec §4.I).
type NodeConfig struct {
	Node      NodeInfo      `yaml:"node"`
	Transport TransportInfo `yaml:"transport"`
	IP        IPInfo        `yaml:"ip"`
	Gattlink  GattlinkInfo  `yaml:"gattlink"`
	DTLS      DTLSInfo      `yaml:"dtls"`
	Logging   LoggingInfo   `yaml:"logging"`
	Metrics   MetricsInfo   `yaml:"metrics"`
}

// NodeInfo identifies the node.
type NodeInfo struct {
	Name string `yaml:"name"`
}

// LoadNodeConfig reads and validates path as a NodeConfig.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading node config: %w", err)
	}
	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing node config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating node config: %w", err)
	}
	return &cfg, nil
}

func (c *NodeConfig) validate() error {
	if c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}
	if err := c.Transport.validate(); err != nil {
		return err
	}
	if c.Transport.Kind == "tcp" && c.Transport.Address == "" {
		return fmt.Errorf("transport.address is required when transport.kind is \"tcp\"")
	}
	if err := c.DTLS.validate(); err != nil {
		return err
	}
	c.Logging.applyDefaults()
	return nil
}

// PSKKey decodes DTLS.PSKKeyHex, returning nil if DTLS is disabled.
func (c *NodeConfig) PSKKey() ([]byte, error) {
	if c.DTLS.Role == "" {
		return nil, nil
	}
	return hex.DecodeString(c.DTLS.PSKKeyHex)
}
