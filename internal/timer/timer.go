// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package timer implements the monotonic, externally-clocked timer
// scheduler every loop-bound component schedules against (spec §4.C).
// Unlike a real-time scheduler built on time.Timer, this one is driven by
// an explicit SetTime call from the event loop's run() tick, giving the
// single-threaded cooperative model in spec §5 a deterministic,
// test-friendly clock: nothing fires except in response to SetTime.
package timer

import (
	"github.com/fitbit/goldengate-go/internal/ggerr"
)

// DefaultPoolSize is the fixed number of pre-allocated timer slots (spec
// §4.C "a fixed pool (e.g., 32)").
const DefaultPoolSize = 32

// Listener is notified when a scheduled Timer fires.
type Listener interface {
	OnTimerFired(t *Timer, elapsedMs int64)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(t *Timer, elapsedMs int64)

// OnTimerFired implements Listener.
func (f ListenerFunc) OnTimerFired(t *Timer, elapsedMs int64) { f(t, elapsedMs) }

// Timer is a pool entry. Zero value is an unused (free) slot.
type Timer struct {
	inUse     bool
	scheduled bool
	seq       uint64 // insertion-order tie-break
	startMs   int64
	fireMs    int64
	listener  Listener
}

// Scheduler is a fixed-size pool of Timers plus a time-ordered pending
// list, advanced by SetTime.
type Scheduler struct {
	pool    []Timer
	pending []*Timer // kept sorted by (fireMs, seq)
	nowMs   int64
	nextSeq uint64
}

// NewScheduler allocates a scheduler with the given pool size (use
// DefaultPoolSize unless a test needs to exhaust the pool quickly).
func NewScheduler(poolSize int) *Scheduler {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Scheduler{pool: make([]Timer, poolSize)}
}

// CreateTimer returns a free pool slot, or OUT_OF_RESOURCES if the pool
// is exhausted.
func (s *Scheduler) CreateTimer() (*Timer, error) {
	for i := range s.pool {
		if !s.pool[i].inUse {
			s.pool[i] = Timer{inUse: true}
			return &s.pool[i], nil
		}
	}
	return nil, ggerr.New("timer.CreateTimer", ggerr.OutOfResources)
}

// DestroyTimer returns a timer to the free pool. It is unscheduled first
// if still pending.
func (s *Scheduler) DestroyTimer(t *Timer) {
	if t == nil || !t.inUse {
		return
	}
	s.Unschedule(t)
	t.inUse = false
}

// Schedule arms t to fire msFromNow milliseconds after the scheduler's
// current virtual time, notifying listener. schedule(0) fires on the next
// SetTime call, never reentrantly within Schedule itself (spec §4.C edge
// case). Re-scheduling an already-pending timer moves it; ties on fireMs
// are broken by insertion order, matching spec §8 property 6.
func (s *Scheduler) Schedule(t *Timer, listener Listener, msFromNow int64) {
	if t == nil {
		return
	}
	s.removePending(t)
	t.startMs = s.nowMs
	t.fireMs = s.nowMs + msFromNow
	t.listener = listener
	t.seq = s.nextSeq
	s.nextSeq++
	t.scheduled = true
	s.insertPending(t)
}

// Unschedule detaches t if pending. Idempotent.
func (s *Scheduler) Unschedule(t *Timer) {
	if t == nil {
		return
	}
	s.removePending(t)
	t.scheduled = false
}

// IsScheduled reports whether t is currently pending.
func (t *Timer) IsScheduled() bool { return t.scheduled }

// SetTime advances the virtual clock to nowMs and fires, in order, every
// timer whose fireMs <= nowMs. Handlers may reschedule or destroy their
// own timer; the scheduler snapshots the list of due timers up front so a
// reschedule inside a handler cannot cause it to fire twice in the same
// SetTime call, and removes each timer from pending before invoking its
// handler so a destroy is safe. Returns the number of timers fired.
func (s *Scheduler) SetTime(nowMs int64) int {
	s.nowMs = nowMs

	var due []*Timer
	for len(s.pending) > 0 && s.pending[0].fireMs <= nowMs {
		t := s.pending[0]
		s.pending = s.pending[1:]
		t.scheduled = false
		due = append(due, t)
	}

	count := 0
	for _, t := range due {
		if !t.inUse {
			continue // destroyed out from under us before we got to it
		}
		elapsed := nowMs - t.startMs
		listener := t.listener
		if listener != nil {
			listener.OnTimerFired(t, elapsed)
		}
		count++
	}
	return count
}

// NextDeadlineMs returns the fire time of the earliest pending timer and
// true, or (0, false) if nothing is scheduled. The event loop uses this to
// bound how long it may block waiting for messages/FD events (spec §4.D:
// "wait cap equal to time until next timer").
func (s *Scheduler) NextDeadlineMs() (int64, bool) {
	if len(s.pending) == 0 {
		return 0, false
	}
	return s.pending[0].fireMs, true
}

// NowMs returns the scheduler's current virtual time.
func (s *Scheduler) NowMs() int64 { return s.nowMs }

func (s *Scheduler) insertPending(t *Timer) {
	i := 0
	for i < len(s.pending) {
		p := s.pending[i]
		if p.fireMs > t.fireMs || (p.fireMs == t.fireMs && p.seq > t.seq) {
			break
		}
		i++
	}
	s.pending = append(s.pending, nil)
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = t
}

func (s *Scheduler) removePending(t *Timer) {
	for i, p := range s.pending {
		if p == t {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}
