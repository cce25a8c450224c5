// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package loop

import "github.com/fitbit/goldengate-go/internal/ports"

// ListenerProxy forwards OnCanPut notifications fired on an arbitrary
// goroutine into a call on the target loop's own thread, mirroring
// SinkProxy's direction of travel for the opposite edge of a data-flow
// connection (spec §4.D: "the listener side needs the same proxying as
// the sink side, just without a payload to clone").
type ListenerProxy struct {
	loop   *Loop
	target ports.Listener
}

// NewListenerProxy returns a Listener whose OnCanPut posts to loop and
// invokes target there.
func NewListenerProxy(l *Loop, target ports.Listener) *ListenerProxy {
	return &ListenerProxy{loop: l, target: target}
}

// OnCanPut implements ports.Listener. Posting is best-effort: a full
// queue silently drops the notification rather than blocking the calling
// thread, since OnCanPut firing is advisory — the caller will simply
// retry PutData and get WOULD_BLOCK again if the condition hasn't
// actually cleared yet.
func (p *ListenerProxy) OnCanPut() {
	p.loop.TryPostMessage(NewFuncMessage(func() { p.target.OnCanPut() }, nil))
}
