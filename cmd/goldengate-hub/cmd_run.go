// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fitbit/goldengate-go/internal/config"
	"github.com/fitbit/goldengate-go/internal/gattlink"
	"github.com/fitbit/goldengate-go/internal/logging"
	"github.com/fitbit/goldengate-go/internal/loop"
	"github.com/fitbit/goldengate-go/internal/metrics"
	"github.com/fitbit/goldengate-go/internal/remoteshell"
	"github.com/fitbit/goldengate-go/internal/stack"
	"github.com/fitbit/goldengate-go/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load a hub config and accept node connections, one stack per connection",
	RunE:  runHub,
}

func init() {
	runCmd.Flags().String("config", "configs/hub.example.yaml", "Path to the hub config YAML file")
	viper.BindPFlag("run.config", runCmd.Flags().Lookup("config"))
	viper.BindEnv("run.config", "GOLDENGATE_CONFIG")
	rootCmd.AddCommand(runCmd)
}

// hubState tracks the stacks currently built across accepted connections,
// for introspection (spec §4.L "stack.status") and the
// MaxStacks cap (spec §4.H bounds concurrent stack instances).
type hubState struct {
	mu     sync.Mutex
	stacks map[int]*stack.Stack
}

func (h *hubState) add(s *stack.Stack) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stacks[s.ID()] = s
}

func (h *hubState) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stacks, id)
}

func (h *hubState) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stacks)
}

func (h *hubState) snapshot() []*stack.Stack {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*stack.Stack, 0, len(h.stacks))
	for _, s := range h.stacks {
		out = append(out, s)
	}
	return out
}

func runHub(cmd *cobra.Command, args []string) error {
	cfgPath := viper.GetString("run.config")
	cfg, err := config.LoadHubConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading hub config %q: %w", cfgPath, err)
	}

	log, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()
	log = log.With("hub", cfg.Hub.Name)

	if cfg.Transport.Kind != "tcp" {
		return fmt.Errorf("run only supports transport.kind=tcp (got %q); pipe is for tests/demos", cfg.Transport.Kind)
	}
	ln, err := transport.ListenTCP(cfg.Transport.Listen, log)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cfg.Transport.Listen, err)
	}
	defer ln.Close()

	state := &hubState{stacks: make(map[int]*stack.Stack)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
		ln.Close()
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		m = metrics.New()
		exp := metrics.NewExporter(m)
		registry := remoteshell.NewRegistry(log)
		registry.Register("stack.status", hubStackStatusHandler(state))
		go serveIntrospection(cfg.Metrics.Listen, exp, registry, log)
	}

	log.Info("hub listening", "addr", ln.Addr().String(), "max_stacks", cfg.MaxStacks)
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			break
		}
		if state.count() >= cfg.MaxStacks {
			log.Warn("rejecting connection: max_stacks reached", "max_stacks", cfg.MaxStacks)
			conn.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runHubStack(ctx, conn, cfg, state, m, log)
		}()
	}
	wg.Wait()
	return nil
}

func runHubStack(ctx context.Context, conn *transport.Framed, cfg *config.HubConfig, state *hubState, m *metrics.Metrics, log *slog.Logger) {
	defer conn.Close()

	l := loop.New(64)
	l.SetLogger(log)
	l.BindThread()

	descriptor, keyResolver, err := dtlsParamsForHub(cfg)
	if err != nil {
		log.Error("resolving dtls params", "err", err)
		return
	}

	var ipCfg *stack.IPConfig
	if cfg.IP.MTU != 0 {
		ipCfg = &stack.IPConfig{IPMTU: cfg.IP.MTU}
	}

	s, err := stack.Build(stack.Config{
		Descriptor:      descriptor,
		Role:            stack.RoleHub,
		IPConfig:        ipCfg,
		Loop:            l,
		TransportSource: conn,
		TransportSink:   conn,
		Gattlink: &gattlink.Config{
			DesiredTxWindow: byte(cfg.Gattlink.DesiredTxWindow),
			DesiredRxWindow: byte(cfg.Gattlink.DesiredRxWindow),
		},
		DTLSServerKeyResolver: keyResolver,
		Logger:                log,
	})
	if err != nil {
		log.Error("building stack for accepted connection", "err", err)
		return
	}

	state.add(s)
	if m != nil {
		m.StackInstancesActive.Set(float64(state.count()))
	}
	defer func() {
		state.remove(s.ID())
		if m != nil {
			m.StackInstancesActive.Set(float64(state.count()))
		}
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.Reset()
		cancel()
	}()

	s.Start()
	log.Info("accepted node connection", "stack_id", s.ID(), "descriptor", descriptor)
	if err := l.Run(connCtx); err != nil {
		log.Warn("stack loop exited", "stack_id", s.ID(), "err", err)
	}
}

func hubStackStatusHandler(state *hubState) remoteshell.HandlerFunc {
	return func(_ context.Context, _ []byte) (any, *remoteshell.Error) {
		type entry struct {
			ID            int    `cbor:"id"`
			Role          string `cbor:"role"`
			LocalAddress  uint32 `cbor:"local_address"`
			RemoteAddress uint32 `cbor:"remote_address"`
			IPMTU         int    `cbor:"ip_mtu"`
		}
		stacks := state.snapshot()
		out := make([]entry, 0, len(stacks))
		for _, s := range stacks {
			cfg := s.IPConfig()
			out = append(out, entry{
				ID:            s.ID(),
				Role:          s.Role().String(),
				LocalAddress:  cfg.LocalAddress,
				RemoteAddress: cfg.RemoteAddress,
				IPMTU:         cfg.IPMTU,
			})
		}
		return out, nil
	}
}
