// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import (
	"log/slog"
	"sync"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ipv4"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// netifElement is the Network Interface stack element ('N'): its top port
// carries whole plaintext IPv4/UDP datagrams, its bottom port carries the
// length-prefixed, optionally header-compressed byte stream Gattlink
// reassembles (spec §4.F, §4.H). Outbound datagrams are compressed
// per-packet (stateless); inbound bytes are fed through an
// ipv4.Assembler; besides the assembler's state, the element holds at most
// one pending inbound frame.
type netifElement struct {
	id  int
	log *slog.Logger

	compress bool
	ipCfg    ipv4.IPConfig

	asm *ipv4.Assembler

	mu            sync.Mutex
	pendingFrame  []byte
	top           *netifTopPort
	bottom        *netifBottomPort
}

func newNetifElement(id int, ipMTU int, compress bool, ipCfg IPConfig, remap *ipv4.AddressMap, log *slog.Logger) *netifElement {
	e := &netifElement{
		id:       id,
		log:      log,
		compress: compress,
		ipCfg:    ipCfg.toIPv4Config(),
	}
	e.asm = ipv4.NewAssembler(ipv4.AssemblerConfig{
		MaxPacketSize: ipMTU,
		IPConfig:      e.ipCfg,
		Decompress:    true,
		Remap:         remap,
		Logger:        log,
	})
	e.top = &netifTopPort{element: e}
	e.bottom = &netifBottomPort{element: e}
	return e
}

func (e *netifElement) kind() Kind { return KindNetworkInterface }

func (e *netifElement) topPort() port    { return e.top }
func (e *netifElement) bottomPort() port { return e.bottom }
func (e *netifElement) start()           {}
func (e *netifElement) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.asm.Reset()
	e.pendingFrame = nil
}

// putOutboundDatagram compresses (if enabled) a whole datagram received
// from above and forwards it toward Gattlink.
func (e *netifElement) putOutboundDatagram(pkt []byte) error {
	out := pkt
	if e.compress {
		compressed, err := e.compressPacket(pkt)
		if err != nil {
			e.log.Warn("netif: compression failed, sending uncompressed", "element", e.id, "err", err)
		} else {
			out = compressed
		}
	}
	sink := e.bottom.sink()
	if sink == nil {
		return ggerr.New("netif.putOutboundDatagram", ggerr.WouldBlock)
	}
	return sink.PutData(buffer.NewDynamicFromBytes(out), nil)
}

func (e *netifElement) compressPacket(pkt []byte) ([]byte, error) {
	ih, err := ipv4.ParseHeader(pkt)
	if err != nil {
		return nil, err
	}
	headerLen := int(ih.IHL) * 4
	if headerLen > len(pkt) {
		return nil, ggerr.New("netif.compressPacket", ggerr.InvalidFormat)
	}
	var udp *ipv4.UDPHeader
	payload := pkt[headerLen:]
	if ih.Protocol == ipv4.ProtocolUDP {
		u, err := ipv4.ParseUDPHeader(payload)
		if err != nil {
			return nil, err
		}
		udp = &u
		payload = payload[8:]
	}
	return ipv4.CompressHeaders(ih, udp, payload, e.ipCfg)
}

// feedInboundBytes drives data through the frame assembler and forwards
// any completed datagrams upward, queuing at most one pending frame to
// honor the top sink's back-pressure (spec §9 "one pending record" idiom,
// mirrored here since emitted frames can't be re-synthesized once the
// assembler has consumed their bytes off the stream).
func (e *netifElement) feedInboundBytes(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(data) > 0 {
		buf := e.asm.GetBuffer()
		n := copy(buf, data)
		if n == 0 {
			break
		}
		data = data[n:]
		frame, err := e.asm.Feed(n)
		if err != nil {
			e.log.Warn("netif: assembler error", "element", e.id, "err", err)
			continue
		}
		if frame != nil {
			e.deliverLocked(frame)
		}
	}
}

func (e *netifElement) deliverLocked(frame []byte) {
	sink := e.top.sink()
	if sink == nil {
		e.pendingFrame = frame
		return
	}
	err := sink.PutData(buffer.NewDynamicFromBytes(frame), nil)
	if err == nil {
		return
	}
	if ggerr.Is(err, ggerr.WouldBlock) {
		e.pendingFrame = frame
		return
	}
	e.log.Warn("netif: delivery to upper element failed", "element", e.id, "err", err)
}

func (e *netifElement) pump() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingFrame == nil {
		return
	}
	frame := e.pendingFrame
	e.pendingFrame = nil
	e.deliverLocked(frame)
}

// netifTopPort carries whole IPv4/UDP datagrams to/from the element
// above (DTLS or the datagram socket).
type netifTopPort struct {
	element *netifElement
	ports.SourceSlot
	ports.ListenerSlot
}

func (p *netifTopPort) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	return p.element.putOutboundDatagram(b.Data())
}

func (p *netifTopPort) sink() ports.Sink { return p.SourceSlot.Sink() }

func (p *netifTopPort) SetSink(sink ports.Sink) {
	p.SourceSlot.SetSink(sink)
	if sink != nil {
		sink.SetListener(ports.ListenerFunc(p.element.pump))
	}
}

// netifBottomPort carries the reassembled/raw byte stream to/from
// Gattlink.
type netifBottomPort struct {
	element *netifElement
	ports.SourceSlot
	ports.ListenerSlot
}

func (p *netifBottomPort) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	p.element.feedInboundBytes(b.Data())
	return nil
}

func (p *netifBottomPort) sink() ports.Sink { return p.SourceSlot.Sink() }

var (
	_ ports.Sink   = (*netifTopPort)(nil)
	_ ports.Source = (*netifTopPort)(nil)
	_ ports.Sink   = (*netifBottomPort)(nil)
	_ ports.Source = (*netifBottomPort)(nil)
)
