// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package transport

import (
	"log/slog"
	"net"

	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// DialTCP connects to addr and wraps the connection as a Framed
// transport, standing in for a BLE GATT link from a node (spec §4.N).
func DialTCP(addr string, log *slog.Logger) (*Framed, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, ggerr.Wrap("transport.DialTCP", ggerr.Interrupted, err)
	}
	return NewFramed(conn, log), nil
}

// Listener accepts inbound TCP connections and wraps each as a Framed
// transport, one per connected stack (spec §4.H, §4.N: a hub fans out to
// up to MaxStacks concurrent stacks).
type Listener struct {
	ln  net.Listener
	log *slog.Logger
}

// ListenTCP starts listening on addr.
func ListenTCP(addr string, log *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ggerr.Wrap("transport.ListenTCP", ggerr.Interrupted, err)
	}
	return &Listener{ln: ln, log: log}, nil
}

// Accept blocks for the next inbound connection and wraps it as a
// Framed transport.
func (l *Listener) Accept() (*Framed, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, ggerr.Wrap("transport.Listener.Accept", ggerr.Interrupted, err)
	}
	return NewFramed(conn, l.log), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }
