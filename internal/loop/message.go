// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package loop

// Message is a unit of cross-thread work dispatched on the loop's own
// goroutine (spec §4.D: "handle() runs on the loop thread; release() runs
// wherever the message was dropped, possibly off-thread").
type Message interface {
	Handle()
	Release()
}

// funcMessage adapts a pair of functions to Message, used internally by
// InvokeAsync and the proxies so callers never implement Message by hand.
type funcMessage struct {
	handle  func()
	release func()
}

func (f *funcMessage) Handle() {
	if f.handle != nil {
		f.handle()
	}
}

func (f *funcMessage) Release() {
	if f.release != nil {
		f.release()
	}
}

// NewFuncMessage builds a Message from a handle callback and an optional
// release callback.
func NewFuncMessage(handle func(), release func()) Message {
	return &funcMessage{handle: handle, release: release}
}

// terminationMessage is the sentinel posted by Loop.Stop; handling it sets
// the loop's terminate flag so Run returns after draining the queue.
type terminationMessage struct {
	loop *Loop
}

func (t *terminationMessage) Handle()  { t.loop.terminated = true }
func (t *terminationMessage) Release() {}
