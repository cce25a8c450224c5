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

// defaultMaxStacks mirrors internal/stack.MaxInstances' own default
// (spec §4.H "a small configurable number (e.g., 64)").
const defaultMaxStacks = 64

// HubConfig is a goldengate-hub's full configuration (spec §4.I):
// the same per-stack shape as NodeConfig, plus a concurrent-stack bound,
// since a hub services many peers from one process.
type HubConfig struct {
	Hub       HubInfo       `yaml:"hub"`
	Transport TransportInfo `yaml:"transport"`
	IP        IPInfo        `yaml:"ip"`
	Gattlink  GattlinkInfo  `yaml:"gattlink"`
	DTLS      DTLSInfo      `yaml:"dtls"`
	Logging   LoggingInfo   `yaml:"logging"`
	Metrics   MetricsInfo   `yaml:"metrics"`
	MaxStacks int           `yaml:"max_stacks"`
}

// HubInfo identifies the hub.
type HubInfo struct {
	Name string `yaml:"name"`
}

// LoadHubConfig reads and validates path as a HubConfig.
func LoadHubConfig(path string) (*HubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hub config: %w", err)
	}
	var cfg HubConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing hub config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating hub config: %w", err)
	}
	return &cfg, nil
}

func (c *HubConfig) validate() error {
	if c.Hub.Name == "" {
		return fmt.Errorf("hub.name is required")
	}
	if err := c.Transport.validate(); err != nil {
		return err
	}
	if c.Transport.Kind == "tcp" && c.Transport.Listen == "" {
		return fmt.Errorf("transport.listen is required when transport.kind is \"tcp\"")
	}
	if err := c.DTLS.validate(); err != nil {
		return err
	}
	c.Logging.applyDefaults()
	if c.MaxStacks <= 0 {
		c.MaxStacks = defaultMaxStacks
	}
	return nil
}

// PSKKey decodes DTLS.PSKKeyHex, returning nil if DTLS is disabled.
func (c *HubConfig) PSKKey() ([]byte, error) {
	if c.DTLS.Role == "" {
		return nil, nil
	}
	return hex.DecodeString(c.DTLS.PSKKeyHex)
}
