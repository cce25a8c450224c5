// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
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
	Short: "Load a node config, dial its hub, and run the stack until interrupted",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().String("config", "configs/node.example.yaml", "Path to the node config YAML file")
	viper.BindPFlag("run.config", runCmd.Flags().Lookup("config"))
	viper.BindEnv("run.config", "GOLDENGATE_CONFIG")
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	cfgPath := viper.GetString("run.config")
	cfg, err := config.LoadNodeConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading node config %q: %w", cfgPath, err)
	}

	log, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()
	log = log.With("node", cfg.Node.Name)

	if cfg.Transport.Kind != "tcp" {
		return fmt.Errorf("run only supports transport.kind=tcp (got %q); pipe is for tests/demos", cfg.Transport.Kind)
	}
	conn, err := transport.DialTCP(cfg.Transport.Address, log)
	if err != nil {
		return fmt.Errorf("dialing hub at %q: %w", cfg.Transport.Address, err)
	}
	defer conn.Close()

	l := loop.New(64)
	l.SetLogger(log)
	l.BindThread()

	descriptor, clientIdentity, clientKey, keyResolver, err := dtlsParamsForNode(cfg)
	if err != nil {
		return err
	}

	var ipCfg *stack.IPConfig
	if cfg.IP.MTU != 0 {
		ipCfg = &stack.IPConfig{IPMTU: cfg.IP.MTU}
	}

	s, err := stack.Build(stack.Config{
		Descriptor:      descriptor,
		Role:            stack.RoleNode,
		IPConfig:        ipCfg,
		Loop:            l,
		TransportSource: conn,
		TransportSink:   conn,
		Gattlink: &gattlink.Config{
			DesiredTxWindow: byte(cfg.Gattlink.DesiredTxWindow),
			DesiredRxWindow: byte(cfg.Gattlink.DesiredRxWindow),
		},
		DTLSClientIdentity:    clientIdentity,
		DTLSClientKey:         clientKey,
		DTLSServerKeyResolver: keyResolver,
		Logger:                log,
	})
	if err != nil {
		return fmt.Errorf("building stack: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		s.Reset()
		cancel()
	}()

	var exp *metrics.Exporter
	if cfg.Metrics.Listen != "" {
		m := metrics.New()
		exp = metrics.NewExporter(m)
		m.StackInstancesActive.Set(1)
		registry := remoteshell.NewRegistry(log)
		registry.Register("stack.status", remoteshell.StackStatusHandler(s))
		go serveIntrospection(cfg.Metrics.Listen, exp, registry, log)
	}

	s.Start()
	log.Info("node stack started", "descriptor", descriptor, "transport", cfg.Transport.Address)
	return l.Run(ctx)
}
