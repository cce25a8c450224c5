// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package transport provides the opaque-packet transports the spec
// places out of scope of the protocol stack itself (spec §4.N): a pipe
// transport for tests/demos and a TCP transport standing in for the BLE
// GATT link.
package transport

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// maxFrameSize bounds a single opaque packet this transport will read or
// write, guarding the length-prefix parser against a corrupt peer.
const maxFrameSize = 1 << 20

// Framed is a bidirectional opaque-packet transport over any
// io.ReadWriteCloser, using a 4-byte big-endian length prefix per frame.
// It implements both ports.Source (inbound frames reach the registered
// sink) and ports.Sink (PutData writes an outbound frame), so the stack
// builder wires one Framed value as both Config.TransportSource and
// Config.TransportSink (spec §4.H, §4.N).
type Framed struct {
	conn io.ReadWriteCloser
	log  *slog.Logger

	writeMu sync.Mutex

	ports.SourceSlot
	ports.ListenerSlot

	closeOnce sync.Once
	done      chan struct{}
}

// NewFramed wraps conn and starts its read loop.
func NewFramed(conn io.ReadWriteCloser, log *slog.Logger) *Framed {
	f := &Framed{conn: conn, log: log, done: make(chan struct{})}
	go f.readLoop()
	return f
}

// PutData implements ports.Sink: writes data as one length-prefixed
// frame.
func (f *Framed) PutData(b *buffer.Buffer, _ *buffer.Metadata) error {
	data := b.Data()
	if len(data) > maxFrameSize {
		return ggerr.New("transport.Framed.PutData", ggerr.OutOfRange)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if _, err := f.conn.Write(hdr[:]); err != nil {
		return ggerr.Wrap("transport.Framed.PutData", ggerr.Interrupted, err)
	}
	if len(data) > 0 {
		if _, err := f.conn.Write(data); err != nil {
			return ggerr.Wrap("transport.Framed.PutData", ggerr.Interrupted, err)
		}
	}
	return nil
}

func (f *Framed) readLoop() {
	defer close(f.done)
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(f.conn, hdr[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > maxFrameSize {
			f.log.Warn("transport: oversized frame length, closing connection", "length", n)
			return
		}
		payload := make([]byte, n)
		if n > 0 {
			if _, err := io.ReadFull(f.conn, payload); err != nil {
				return
			}
		}
		sink := f.SourceSlot.Sink()
		if sink == nil {
			continue
		}
		if err := sink.PutData(buffer.NewStatic(payload), nil); err != nil && !ggerr.Is(err, ggerr.WouldBlock) {
			f.log.Warn("transport: delivery to stack failed", "err", err)
		}
	}
}

// Close shuts down the underlying connection and waits for the read loop
// to exit.
func (f *Framed) Close() error {
	f.closeOnce.Do(func() { f.conn.Close() })
	<-f.done
	return nil
}

var (
	_ ports.Sink   = (*Framed)(nil)
	_ ports.Source = (*Framed)(nil)
)
