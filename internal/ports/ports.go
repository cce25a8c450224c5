// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package ports defines the uniform data-flow contracts every stack
// element is built from (spec §4.B): a Sink receives data, a Source
// emits it to a registered Sink, and a Listener is notified when a sink
// that previously refused data might accept it again.
package ports

import "github.com/fitbit/goldengate-go/internal/buffer"

// Sink receives data pushed by a Source. PutData must never block: if the
// sink cannot accept the buffer right now it returns a ggerr.WouldBlock
// error without buffering anything, and the caller must not retry immediately — it must
// wait for OnCanPut on its registered Listener.
//
// Metadata, when non-nil, is borrowed for the duration of the call; a
// sink that wants to keep it past return must clone it first
// (buffer.CloneMetadata).
type Sink interface {
	PutData(b *buffer.Buffer, md *buffer.Metadata) error
	SetListener(l Listener)
}

// Source emits data to a single registered Sink.
type Source interface {
	SetSink(s Sink)
}

// Listener is notified exactly once per WOULD_BLOCK→can-accept edge
// transition of the sink it is registered on.
type Listener interface {
	OnCanPut()
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func()

// OnCanPut implements Listener.
func (f ListenerFunc) OnCanPut() {
	if f != nil {
		f()
	}
}

// NopListener discards OnCanPut notifications; useful as a zero value
// when a component hasn't registered a real listener yet.
var NopListener Listener = ListenerFunc(nil)
