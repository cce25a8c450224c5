// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package main

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fitbit/goldengate-go/internal/metrics"
	"github.com/fitbit/goldengate-go/internal/remoteshell"
)

// serveIntrospection exposes /metrics (Prometheus scrape) and /rpc (the
// CBOR/JSON-RPC 2.0 remote shell, spec §4.L) on addr. It blocks; run it in
// its own goroutine.
func serveIntrospection(addr string, exp *metrics.Exporter, registry *remoteshell.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(exp.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		resp := registry.Dispatch(r.Context(), body)
		w.Header().Set("Content-Type", "application/cbor")
		w.Write(resp)
	})
	log.Info("introspection server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("introspection server stopped", "err", err)
	}
}
