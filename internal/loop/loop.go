// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package loop implements the single-threaded cooperative event loop every
// stack element runs against (spec §4.D). Exactly one goroutine ever calls
// element code for a given Loop: cross-goroutine callers reach it only by
// posting a Message or through InvokeSync/InvokeAsync, never by calling
// element methods directly.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/fitbit/goldengate-go/internal/ggerr"
	"github.com/fitbit/goldengate-go/internal/timer"
	"github.com/rs/xid"
)

// ReadySource is the loop-idiomatic stand-in for a pollable file descriptor
// (spec §4.D "wait on the platform's FD multiplexer plus message queue
// plus next timer deadline"). Go has no portable raw-FD wait primitive at
// this layer, so a registered source signals readiness over a channel
// instead of a numeric fd; RegisterSource's handler plays the role the
// platform backend would play after poll()/epoll_wait() returns.
type ReadySource interface {
	Ready() <-chan struct{}
}

type registeredSource struct {
	name    string
	src     ReadySource
	handler func()
	stop    chan struct{}
}

// Loop is a single-threaded cooperative scheduler: one goroutine parks in
// Run, waking on whichever comes first of a posted message, a registered
// source becoming ready, or the next armed timer.
type Loop struct {
	id        string
	log       *slog.Logger
	queue     *messageQueue
	scheduler *timer.Scheduler
	start     time.Time

	mu        sync.Mutex
	sources   []*registeredSource
	ownerSet  bool
	ownerGID  uint64
	terminated bool

	sourceEvents chan readySignal
}

// New creates a Loop with the given message queue capacity (pass 0 for
// DefaultQueueCapacity) and a freshly allocated timer scheduler sized to
// timer.DefaultPoolSize.
func New(queueCapacity int) *Loop {
	return &Loop{
		id:           xid.New().String(),
		log:          slog.Default(),
		queue:        newMessageQueue(queueCapacity),
		scheduler:    timer.NewScheduler(timer.DefaultPoolSize),
		start:        time.Now(),
		sourceEvents: make(chan readySignal, 1),
	}
}

// ID returns a stable identifier for this loop instance, used to tag log
// lines and correlate messages across goroutines.
func (l *Loop) ID() string { return l.id }

// SetLogger replaces the loop's logger, used for per-message trace lines
// at slog.LevelDebug. Defaults to slog.Default().
func (l *Loop) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.log = logger
	}
}

// Timers exposes the loop's timer scheduler so loop-bound elements can
// create and arm timers against the same clock Run advances.
func (l *Loop) Timers() *timer.Scheduler { return l.scheduler }

// BindThread records the calling goroutine as this loop's owner. Run calls
// it automatically; tests that drive a Loop without calling Run may call
// it directly so OnLoopThread reports correctly.
func (l *Loop) BindThread() {
	l.mu.Lock()
	l.ownerGID = goroutineID()
	l.ownerSet = true
	l.mu.Unlock()
}

// OnLoopThread reports whether the calling goroutine is the one bound to
// this loop. Best-effort: Go has no supported API for goroutine identity,
// so this parses it out of runtime.Stack the way several ecosystem
// debugging libraries do; treat it as an assertion aid, not a security
// boundary.
func (l *Loop) OnLoopThread() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ownerSet {
		return false
	}
	return goroutineID() == l.ownerGID
}

// elapsedMs returns milliseconds since the loop was constructed, the value
// fed to the timer scheduler's virtual clock.
func (l *Loop) elapsedMs() int64 {
	return time.Since(l.start).Milliseconds()
}

// RegisterSource arms a ReadySource under name; when it signals readiness,
// handler runs on the loop thread during the next Run iteration. Replaces
// any source previously registered under the same name.
func (l *Loop) RegisterSource(name string, src ReadySource, handler func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unregisterLocked(name)
	rs := &registeredSource{name: name, src: src, handler: handler, stop: make(chan struct{})}
	l.sources = append(l.sources, rs)
	go l.pumpSource(rs)
}

// UnregisterSource removes a previously registered source by name and
// stops the goroutine pumping its readiness channel into the loop.
func (l *Loop) UnregisterSource(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unregisterLocked(name)
}

func (l *Loop) unregisterLocked(name string) {
	for i, s := range l.sources {
		if s.name == name {
			close(s.stop)
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			return
		}
	}
}

// pumpSource forwards rs becoming ready into the loop's single event
// channel until rs is unregistered; it is the Go-idiomatic analogue of the
// platform FD multiplexer waking on one more descriptor.
func (l *Loop) pumpSource(rs *registeredSource) {
	for {
		select {
		case <-rs.stop:
			return
		case <-rs.src.Ready():
			select {
			case l.sourceEvents <- readySignal{name: rs.name, handler: rs.handler}:
			case <-rs.stop:
				return
			}
		}
	}
}

// PostMessage enqueues msg for handling on the loop thread, blocking up to
// timeout if the queue is full (timeout <= 0 waits indefinitely). Returns
// ggerr.Timeout if the deadline elapses, or ggerr.Interrupted if the loop
// has already stopped.
func (l *Loop) PostMessage(msg Message, timeout time.Duration) error {
	cid := xid.New().String()
	l.log.Debug("loop: message posted", "loop", l.id, "msg", cid)
	tracked := NewFuncMessage(func() {
		l.log.Debug("loop: message handled", "loop", l.id, "msg", cid)
		msg.Handle()
	}, msg.Release)
	if !l.queue.push(tracked, timeout) {
		if l.queue.isClosed() {
			return ggerr.New("loop.PostMessage", ggerr.Interrupted)
		}
		return ggerr.New("loop.PostMessage", ggerr.Timeout)
	}
	return nil
}

// InvokeAsync posts fn(arg) to run on the loop thread and returns
// immediately without waiting for it to execute.
func (l *Loop) InvokeAsync(fn func(arg any), arg any) error {
	return l.PostMessage(NewFuncMessage(func() { fn(arg) }, nil), 0)
}

// TryPostMessage enqueues msg without blocking, returning false if the
// queue is currently full or the loop has stopped. Used where posting is
// advisory rather than load-bearing, such as forwarding an OnCanPut
// notification across the thread boundary.
func (l *Loop) TryPostMessage(msg Message) bool {
	cid := xid.New().String()
	tracked := NewFuncMessage(func() {
		l.log.Debug("loop: message handled", "loop", l.id, "msg", cid)
		msg.Handle()
	}, msg.Release)
	ok := l.queue.tryPush(tracked)
	if ok {
		l.log.Debug("loop: message posted", "loop", l.id, "msg", cid)
	}
	return ok
}

// InvokeSync runs fn(arg) on the loop thread and blocks the calling
// goroutine until it completes, returning fn's result. Called from the
// loop thread itself it runs fn inline with no round-trip (spec §4.D:
// "invoke_sync called from the loop's own thread must not deadlock").
func (l *Loop) InvokeSync(fn func(arg any) int, arg any) (int, error) {
	if l.OnLoopThread() {
		return fn(arg), nil
	}
	result := make(chan int, 1)
	err := l.PostMessage(NewFuncMessage(func() {
		result <- fn(arg)
	}, nil), 0)
	if err != nil {
		return 0, err
	}
	return <-result, nil
}

// Stop posts the termination message, causing Run to exit once it has
// drained and handled every message already queued ahead of it.
func (l *Loop) Stop() error {
	return l.PostMessage(&terminationMessage{loop: l}, 0)
}

// Run parks the calling goroutine, binding it as the loop's owner, and
// processes messages, ready sources, and fired timers until Stop is
// called or ctx is cancelled. It returns nil on either clean termination.
func (l *Loop) Run(ctx context.Context) error {
	l.BindThread()
	defer func() {
		l.queue.close()
		// Spec §4.D: on termination the message queue is drained, releasing
		// each pending message rather than handling it.
		for _, msg := range l.queue.drain() {
			msg.Release()
		}
	}()

	woken := make(chan struct{}, 1)
	go l.pumpQueue(woken)

	for {
		// terminated is only ever written by a Message.Handle() invoked a
		// few lines below, on this same goroutine, so no lock is needed.
		if l.terminated {
			return nil
		}

		wait := l.waitDuration()
		timerC := time.After(wait)
		var readyHandler func()

		select {
		case <-ctx.Done():
			return nil
		case <-woken:
		case <-timerC:
		case sig := <-l.sourceEvents:
			readyHandler = sig.handler
		}

		l.scheduler.SetTime(l.elapsedMs())

		for _, msg := range l.queue.drain() {
			msg.Handle()
			msg.Release()
		}

		if readyHandler != nil {
			readyHandler()
		}
	}
}

// pumpQueue is the single long-lived goroutine that turns the message
// queue's condition-variable signaling into the channel Run selects on. It
// parks in waitForPush rather than re-spawning per iteration, so an idle
// loop with armed timers or ready sources never accumulates one goroutine
// per wakeup (they'd otherwise sit blocked in notEmpty.Wait until the next
// message finally arrived). It exits once Run closes the queue.
func (l *Loop) pumpQueue(woken chan<- struct{}) {
	var seq uint64
	for {
		next, closed := l.queue.waitForPush(seq)
		if closed {
			return
		}
		seq = next
		select {
		case woken <- struct{}{}:
		default:
		}
	}
}

// waitDuration bounds how long Run may block: the time until the next
// armed timer fires, or one second if nothing is scheduled, so Run always
// wakes periodically to notice context cancellation.
func (l *Loop) waitDuration() time.Duration {
	deadline, ok := l.scheduler.NextDeadlineMs()
	if !ok {
		return time.Second
	}
	remaining := deadline - l.elapsedMs()
	if remaining <= 0 {
		return time.Millisecond
	}
	return time.Duration(remaining) * time.Millisecond
}

type readySignal struct {
	name    string
	handler func()
}

// goroutineID extracts the calling goroutine's numeric id from its stack
// trace header ("goroutine 123 [running]:"), the same technique several
// ecosystem debugging packages use since runtime exposes no supported
// accessor. It is only ever used for the best-effort OnLoopThread check.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	_, err := fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	if err != nil {
		return 0
	}
	return id
}
