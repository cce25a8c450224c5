// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package stack

import (
	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// socketElement is the Datagram Socket stack element ('S'): a terminal
// pass-through representing the application's own datagram endpoint. It
// has no state of its own; its top port is the handle a caller gets back
// from Stack.Top() to send/receive whole IP datagrams directly (the
// no-DTLS case), and its bottom port just forwards to/from whatever sits
// below it in the descriptor.
type socketElement struct {
	id     int
	top    *socketPort
	bottom *socketPort
}

func newSocketElement(id int) *socketElement {
	e := &socketElement{id: id}
	e.top = &socketPort{}
	e.bottom = &socketPort{}
	e.top.peer = e.bottom
	e.bottom.peer = e.top
	return e
}

func (e *socketElement) kind() Kind       { return KindDatagramSocket }
func (e *socketElement) topPort() port    { return e.top }
func (e *socketElement) bottomPort() port { return e.bottom }
func (e *socketElement) start()           {}
func (e *socketElement) reset()           {}

type socketPort struct {
	peer *socketPort
	ports.SourceSlot
	ports.ListenerSlot
}

func (p *socketPort) sink() ports.Sink { return p.peer.SourceSlot.Sink() }

func (p *socketPort) PutData(b *buffer.Buffer, md *buffer.Metadata) error {
	sink := p.sink()
	if sink == nil {
		return ggerr.New("socket.PutData", ggerr.WouldBlock)
	}
	return sink.PutData(b, md)
}

var (
	_ ports.Sink   = (*socketPort)(nil)
	_ ports.Source = (*socketPort)(nil)
)
