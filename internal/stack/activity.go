// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import (
	"log/slog"
	"sync"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ports"
	"github.com/fitbit/goldengate-go/internal/timer"
)

// defaultActivityTimeoutMs is the inactivity window after which a
// direction is reported idle, grounded on
// original_source/xp/utils/gg_activity_data_monitor.c's default.
const defaultActivityTimeoutMs = 3000

// activityElement is the Activity Monitor stack element ('A'): it passes
// data through unmodified in both directions while independently
// tracking bottom-to-top and top-to-bottom traffic, emitting an
// ACTIVITY_CHANGE event on every idle<->active transition (spec §2 row D,
// §4.H "activity changes" among the forwarded events).
type activityElement struct {
	id int

	onActivityChange func(direction string, active bool)

	bottomToTop *activityMonitor
	topToBottom *activityMonitor

	top    *activityPort
	bottom *activityPort
}

func newActivityElement(id int, scheduler *timer.Scheduler, timeoutMs int64, log *slog.Logger) *activityElement {
	if timeoutMs <= 0 {
		timeoutMs = defaultActivityTimeoutMs
	}
	e := &activityElement{id: id}
	e.bottomToTop = newActivityMonitor("bottom_to_top", scheduler, timeoutMs, log)
	e.topToBottom = newActivityMonitor("top_to_bottom", scheduler, timeoutMs, log)
	e.bottomToTop.onChange = func(active bool) { e.notify("bottom_to_top", active) }
	e.topToBottom.onChange = func(active bool) { e.notify("top_to_bottom", active) }

	// top.PutData (outbound, top-to-bottom traffic) marks topToBottom
	// active and forwards through the bottom port's registered sink;
	// bottom.PutData (inbound, bottom-to-top traffic) marks bottomToTop
	// active and forwards through the top port's registered sink.
	e.top = &activityPort{monitor: e.topToBottom}
	e.bottom = &activityPort{monitor: e.bottomToTop}
	e.top.peer = e.bottom
	e.bottom.peer = e.top
	return e
}

func (e *activityElement) notify(direction string, active bool) {
	if e.onActivityChange != nil {
		e.onActivityChange(direction, active)
	}
}

func (e *activityElement) kind() Kind       { return KindActivityMonitor }
func (e *activityElement) topPort() port    { return e.top }
func (e *activityElement) bottomPort() port { return e.bottom }
func (e *activityElement) start()           {}
func (e *activityElement) reset() {
	e.bottomToTop.reset()
	e.topToBottom.reset()
}

// activityMonitor tracks whether data has flowed in one direction within
// the last timeoutMs milliseconds, ported from the ping/pong inactivity
// bookkeeping style in
// other_examples/8f4df6ef_jchadwick-xbslink-ng__internal-bridge-bridge.go.
type activityMonitor struct {
	name      string
	scheduler *timer.Scheduler
	timeoutMs int64
	log       *slog.Logger

	mu       sync.Mutex
	timer    *timer.Timer
	active   bool
	onChange func(active bool)
}

func newActivityMonitor(name string, scheduler *timer.Scheduler, timeoutMs int64, log *slog.Logger) *activityMonitor {
	m := &activityMonitor{name: name, scheduler: scheduler, timeoutMs: timeoutMs, log: log}
	m.timer, _ = scheduler.CreateTimer()
	return m
}

func (m *activityMonitor) onData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasActive := m.active
	m.active = true
	if m.timer != nil {
		m.scheduler.Schedule(m.timer, timer.ListenerFunc(m.onTimeout), m.timeoutMs)
	}
	if !wasActive && m.onChange != nil {
		m.onChange(true)
	}
}

func (m *activityMonitor) onTimeout(_ *timer.Timer, _ int64) {
	m.mu.Lock()
	m.active = false
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(false)
	}
}

func (m *activityMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	if m.timer != nil {
		m.scheduler.Unschedule(m.timer)
	}
}

// activityPort is a pass-through Sink+Source: every PutData call marks
// the associated direction active and forwards the buffer unchanged to
// whatever sink is registered on its peer (the opposite-direction) port.
type activityPort struct {
	monitor *activityMonitor
	peer    *activityPort
	ports.SourceSlot
	ports.ListenerSlot
}

func (p *activityPort) sink() ports.Sink { return p.peer.SourceSlot.Sink() }

func (p *activityPort) PutData(b *buffer.Buffer, md *buffer.Metadata) error {
	p.monitor.onData()
	sink := p.sink()
	if sink == nil {
		return ggerr.New("activity.PutData", ggerr.WouldBlock)
	}
	return sink.PutData(b, md)
}

var (
	_ ports.Sink   = (*activityPort)(nil)
	_ ports.Source = (*activityPort)(nil)
)
