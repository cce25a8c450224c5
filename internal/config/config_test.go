// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNodeConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadNodeConfig(filepath.Join("..", "..", "configs", "node.example.yaml"))
	if err != nil {
		t.Fatalf("failed to load node example config: %v", err)
	}
	if cfg.Node.Name != "node-01" {
		t.Errorf("node.name = %q, want %q", cfg.Node.Name, "node-01")
	}
	if cfg.Transport.Kind != "tcp" {
		t.Errorf("transport.kind = %q, want %q", cfg.Transport.Kind, "tcp")
	}
	if cfg.Transport.Address != "hub.example.internal:9000" {
		t.Errorf("transport.address = %q", cfg.Transport.Address)
	}
	if cfg.IP.MTU != 1280 {
		t.Errorf("ip.mtu = %d, want 1280", cfg.IP.MTU)
	}
	if cfg.DTLS.Role != "client" {
		t.Errorf("dtls.role = %q, want %q", cfg.DTLS.Role, "client")
	}
	key, err := cfg.PSKKey()
	if err != nil {
		t.Fatalf("PSKKey: %v", err)
	}
	if len(key) != 16 {
		t.Errorf("PSKKey length = %d, want 16", len(key))
	}
}

func TestLoadHubConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadHubConfig(filepath.Join("..", "..", "configs", "hub.example.yaml"))
	if err != nil {
		t.Fatalf("failed to load hub example config: %v", err)
	}
	if cfg.Hub.Name != "hub-01" {
		t.Errorf("hub.name = %q, want %q", cfg.Hub.Name, "hub-01")
	}
	if cfg.Transport.Listen != "0.0.0.0:9000" {
		t.Errorf("transport.listen = %q", cfg.Transport.Listen)
	}
	if cfg.MaxStacks != 64 {
		t.Errorf("max_stacks = %d, want 64", cfg.MaxStacks)
	}
	if cfg.DTLS.Role != "server" {
		t.Errorf("dtls.role = %q, want %q", cfg.DTLS.Role, "server")
	}
}

func TestLoadNodeConfigRejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte("transport:\n  kind: pipe\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadNodeConfig(path); err == nil {
		t.Fatal("expected an error for a config missing node.name")
	}
}

func TestLoadHubConfigDefaultsMaxStacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.yaml")
	body := "hub:\n  name: hub-x\ntransport:\n  kind: pipe\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadHubConfig(path)
	if err != nil {
		t.Fatalf("LoadHubConfig: %v", err)
	}
	if cfg.MaxStacks != defaultMaxStacks {
		t.Errorf("max_stacks = %d, want default %d", cfg.MaxStacks, defaultMaxStacks)
	}
}
