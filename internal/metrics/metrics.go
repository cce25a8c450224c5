// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package metrics exposes the process's Prometheus collectors (spec
// §4.K), grounded on the registry + promhttp.Handler wrapper shape of
// the retrieval pack's pkg/exporter packages, scaled down from their
// per-connection TCPInfoCollector to the counter/gauge vectors this
// domain's components actually produce.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "goldengate"

// Metrics is the full set of collectors a node or hub process registers.
// Per-stack series are labeled by stack_id so a hub's ~64 concurrent
// stacks (spec §4.H) stay distinguishable in one registry.
type Metrics struct {
	GattlinkRetransmits       *prometheus.CounterVec
	GattlinkStalls            *prometheus.CounterVec
	GattlinkWindowUtilization *prometheus.GaugeVec

	LoopQueueDepth        *prometheus.GaugeVec
	LoopMessagesProcessed *prometheus.CounterVec

	BufferWatermarkHigh *prometheus.CounterVec
	BufferWatermarkLow  *prometheus.CounterVec

	StackInstancesActive prometheus.Gauge
}

// New builds the collector set, unregistered.
func New() *Metrics {
	return &Metrics{
		GattlinkRetransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gattlink", Name: "retransmits_total",
			Help: "Total data packets retransmitted after a retransmission timeout.",
		}, []string{"stack_id"}),
		GattlinkStalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gattlink", Name: "stalls_total",
			Help: "Total GATTLINK_SESSION_STALLED notifications observed.",
		}, []string{"stack_id"}),
		GattlinkWindowUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gattlink", Name: "window_utilization_ratio",
			Help: "In-flight unacknowledged packets divided by the effective tx window.",
		}, []string{"stack_id"}),
		LoopQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "loop", Name: "queue_depth",
			Help: "Current depth of a loop's posted-message queue.",
		}, []string{"loop_id"}),
		LoopMessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loop", Name: "messages_processed_total",
			Help: "Total messages drained from a loop's queue.",
		}, []string{"loop_id"}),
		BufferWatermarkHigh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "watermark_high_total",
			Help: "Total times a buffer pool's high watermark was crossed.",
		}, []string{"pool"}),
		BufferWatermarkLow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "buffer", Name: "watermark_low_total",
			Help: "Total times a buffer pool's low watermark was crossed.",
		}, []string{"pool"}),
		StackInstancesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stack_instances_active",
			Help: "Number of stack instances currently built in this process.",
		}),
	}
}

// MustRegister registers every collector in m against reg, panicking on a
// duplicate-registration programming error (spec §4.K).
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.GattlinkRetransmits,
		m.GattlinkStalls,
		m.GattlinkWindowUtilization,
		m.LoopQueueDepth,
		m.LoopMessagesProcessed,
		m.BufferWatermarkHigh,
		m.BufferWatermarkLow,
		m.StackInstancesActive,
	)
}
