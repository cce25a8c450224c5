// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package dtls

import (
	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// userPort is the plaintext-facing side of an Element: PutData encrypts
// and forwards a datagram toward the transport side, and the registered
// sink receives decrypted inbound datagrams.
type userPort struct {
	element *Element
	ports.SourceSlot
	ports.ListenerSlot
}

func (p *userPort) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	return p.element.putUserData(b.Data())
}

func (p *userPort) sink() ports.Sink { return p.SourceSlot.Sink() }

func (p *userPort) notifyCanAccept() { p.ListenerSlot.Notify() }

// transportPort is the record-facing side of an Element: PutData handles
// an inbound DTLS record, and the registered sink is where outbound
// records are sent.
type transportPort struct {
	element *Element
	ports.SourceSlot
	ports.ListenerSlot
}

func (p *transportPort) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	p.element.onRecord(b.Data())
	return nil
}

func (p *transportPort) sink() ports.Sink { return p.SourceSlot.Sink() }

// SetSink registers the transport sink and, since transportPort is the
// Source half of this edge, registers itself as that sink's Listener so a
// WOULD_BLOCK-stalled send can be retried once the transport drains.
func (p *transportPort) SetSink(sink ports.Sink) {
	p.SourceSlot.SetSink(sink)
	if sink != nil {
		sink.SetListener(ports.ListenerFunc(p.onTransportCanPut))
	}
}

func (p *transportPort) onTransportCanPut() {
	p.element.mu.Lock()
	defer p.element.mu.Unlock()
	p.element.pumpLocked()
}

var (
	_ ports.Sink   = (*userPort)(nil)
	_ ports.Source = (*userPort)(nil)
	_ ports.Sink   = (*transportPort)(nil)
	_ ports.Source = (*transportPort)(nil)
)
