// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter serves m's collectors on /metrics, started optionally by the
// CLI (spec §4.K, §4.N).
type Exporter struct {
	Metrics  *Metrics
	Registry *prometheus.Registry

	server *http.Server
}

// NewExporter builds a fresh registry, registers m's collectors on it,
// and wires promhttp's handler.
func NewExporter(m *Metrics) *Exporter {
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)
	return &Exporter{Metrics: m, Registry: reg}
}

// ListenAndServe starts an HTTP server exposing /metrics on addr. It
// blocks until the server stops; call Shutdown from another goroutine to
// stop it cleanly.
func (e *Exporter) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux}
	err := e.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the exporter's HTTP server, if started.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
