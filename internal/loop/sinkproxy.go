// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package loop

import (
	"github.com/fitbit/goldengate-go/internal/buffer"
	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/ports"
)

// SinkProxy lets a PutData call originating off the owning loop reach a
// sink that must only ever be touched on its loop thread (spec §4.D: "a
// sink proxy clones the buffer and posts it rather than crossing threads
// directly"). Its own queue is bounded independent of the target loop's
// message queue so one slow sink can't starve the rest of the loop.
type SinkProxy struct {
	loop     *Loop
	target   ports.Sink
	inFlight chan struct{}
	listeners ports.ListenerSlot
}

// NewSinkProxy wraps target, whose methods the returned proxy will only
// ever invoke from loop's thread. maxInFlight bounds how many PutData
// calls may be queued ahead of the target before the proxy itself starts
// reporting WOULD_BLOCK (spec §4.D: "bounded queue, e.g. 16").
func NewSinkProxy(l *Loop, target ports.Sink, maxInFlight int) *SinkProxy {
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	p := &SinkProxy{loop: l, target: target, inFlight: make(chan struct{}, maxInFlight)}
	target.SetListener(ports.ListenerFunc(p.onTargetCanPut))
	return p
}

// PutData clones b and md (so the caller's copy is free to be reused
// immediately) and posts the clone to run target.PutData on the loop
// thread. Returns ggerr.WouldBlock if the proxy's own in-flight bound is
// already saturated.
func (p *SinkProxy) PutData(b *buffer.Buffer, md *buffer.Metadata) error {
	select {
	case p.inFlight <- struct{}{}:
	default:
		return ggerr.New("loop.SinkProxy.PutData", ggerr.WouldBlock)
	}

	clone := buffer.NewDynamicFromBytes(b.Data())
	var mdClone *buffer.Metadata
	if md != nil {
		var err error
		mdClone, err = buffer.CloneMetadata(md, len(md.Payload()))
		if err != nil {
			<-p.inFlight
			clone.Release()
			return err
		}
	}

	err := p.loop.PostMessage(NewFuncMessage(func() {
		_ = p.target.PutData(clone, mdClone)
	}, func() {
		clone.Release()
		<-p.inFlight
		p.listeners.Notify()
	}), 0)
	if err != nil {
		<-p.inFlight
		clone.Release()
		return err
	}
	return nil
}

// SetListener registers the Listener to notify when the proxy's in-flight
// bound has room again.
func (p *SinkProxy) SetListener(l ports.Listener) {
	p.listeners.SetListener(l)
}

// onTargetCanPut is registered as the wrapped sink's listener; it has no
// direct bearing on the proxy's own in-flight bound (that drains as posted
// messages are handled) but is forwarded so callers waiting on the
// underlying sink's real backpressure still get woken.
func (p *SinkProxy) onTargetCanPut() {
	p.listeners.Notify()
}
