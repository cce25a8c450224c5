// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package gattlink

import (
	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// userPort is the application-facing side of a Session: PutData enqueues
// bytes for reliable delivery, and the registered sink (via SetSink)
// receives reassembled inbound bytes in order.
type userPort struct {
	session *Session
	ports.SourceSlot
	ports.ListenerSlot
}

// PutData implements ports.Sink: b's bytes are copied into the session's
// pending send buffer.
func (p *userPort) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	return p.session.pushUserData(b.Data())
}

func (p *userPort) sink() ports.Sink { return p.SourceSlot.Sink() }

// notifyCanAccept wakes a blocked application once pending bytes have
// drained below the soft cap (mirrors the WOULD_BLOCK edge-transition
// contract in spec §4.B).
func (p *userPort) notifyCanAccept() { p.ListenerSlot.Notify() }

// transportPort is the packet-transport-facing side of a Session:
// PutData delivers an inbound opaque packet, and the registered sink
// (via SetSink) is where outbound packets are sent.
type transportPort struct {
	session *Session
	ports.SourceSlot
	ports.ListenerSlot
}

// PutData implements ports.Sink: pkt is handled as an inbound Gattlink
// packet (control or data).
func (p *transportPort) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	p.session.onPacket(b.Data())
	return nil
}

func (p *transportPort) sink() ports.Sink { return p.SourceSlot.Sink() }

// SetSink registers the transport's sink and, since transportPort is the
// Source half of this edge, registers itself as that sink's Listener so a
// WOULD_BLOCK-stalled pump resumes once the transport can accept again.
func (p *transportPort) SetSink(sink ports.Sink) {
	p.SourceSlot.SetSink(sink)
	if sink != nil {
		sink.SetListener(ports.ListenerFunc(p.onTransportCanPut))
	}
}

// onTransportCanPut is registered as the outbound transport sink's
// listener; a previously WOULD_BLOCK-ed pump can now make progress.
func (p *transportPort) onTransportCanPut() {
	p.session.mu.Lock()
	defer p.session.mu.Unlock()
	p.session.pumpLocked()
}

var (
	_ ports.Sink   = (*userPort)(nil)
	_ ports.Source = (*userPort)(nil)
	_ ports.Sink   = (*transportPort)(nil)
	_ ports.Source = (*transportPort)(nil)
)
