// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package timer

import "testing"

type recordingListener struct {
	fired    []int64
	onFire   func(t *Timer)
}

func (r *recordingListener) OnTimerFired(t *Timer, elapsedMs int64) {
	r.fired = append(r.fired, elapsedMs)
	if r.onFire != nil {
		r.onFire(t)
	}
}

func TestSchedulerFiresInTimeOrder(t *testing.T) {
	s := NewScheduler(DefaultPoolSize)
	var order []string

	t1, _ := s.CreateTimer()
	t2, _ := s.CreateTimer()
	s.Schedule(t1, ListenerFunc(func(_ *Timer, _ int64) { order = append(order, "t1") }), 100)
	s.Schedule(t2, ListenerFunc(func(_ *Timer, _ int64) { order = append(order, "t2") }), 50)

	if n := s.SetTime(200); n != 2 {
		t.Fatalf("expected 2 timers fired, got %d", n)
	}
	if len(order) != 2 || order[0] != "t2" || order[1] != "t1" {
		t.Fatalf("expected [t2 t1] firing order, got %v", order)
	}
}

func TestSchedulerTieBreakIsInsertionOrder(t *testing.T) {
	s := NewScheduler(DefaultPoolSize)
	var order []string

	t1, _ := s.CreateTimer()
	t2, _ := s.CreateTimer()
	s.Schedule(t1, ListenerFunc(func(_ *Timer, _ int64) { order = append(order, "first") }), 10)
	s.Schedule(t2, ListenerFunc(func(_ *Timer, _ int64) { order = append(order, "second") }), 10)

	s.SetTime(10)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected insertion-order tie-break, got %v", order)
	}
}

func TestScheduleZeroFiresOnNextTick(t *testing.T) {
	s := NewScheduler(DefaultPoolSize)
	fired := false
	t1, _ := s.CreateTimer()
	s.Schedule(t1, ListenerFunc(func(_ *Timer, _ int64) { fired = true }), 0)
	if fired {
		t.Fatal("timer must not fire reentrantly within Schedule")
	}
	s.SetTime(0)
	if !fired {
		t.Fatal("expected schedule(0) to fire on the next SetTime tick")
	}
}

func TestTimerCanRescheduleItselfFromHandler(t *testing.T) {
	s := NewScheduler(DefaultPoolSize)
	count := 0
	var self *Timer
	listener := ListenerFunc(func(t *Timer, _ int64) {
		count++
		if count < 3 {
			s.Schedule(t, nil, 0) // placeholder, replaced below
		}
	})
	self, _ = s.CreateTimer()
	rec := &recordingListener{}
	rec.onFire = func(t *Timer) {
		if count := len(rec.fired); count < 3 {
			s.Schedule(t, rec, 10)
		}
	}
	s.Schedule(self, rec, 10)
	_ = listener

	s.SetTime(10)
	s.SetTime(20)
	s.SetTime(30)

	if len(rec.fired) != 3 {
		t.Fatalf("expected timer to rearm itself 3 times, fired %d times", len(rec.fired))
	}
}

func TestTimerHandlerCanDestroyAnotherDueTimer(t *testing.T) {
	s := NewScheduler(DefaultPoolSize)
	t1, _ := s.CreateTimer()
	t2, _ := s.CreateTimer()

	s.Schedule(t1, ListenerFunc(func(_ *Timer, _ int64) {
		s.DestroyTimer(t2) // scheduler must not touch t2 after this
	}), 10)
	s.Schedule(t2, ListenerFunc(func(_ *Timer, _ int64) {
		t.Fatal("t2 should have been destroyed before it could fire")
	}), 10)

	s.SetTime(10)
}

func TestPoolExhaustion(t *testing.T) {
	s := NewScheduler(2)
	if _, err := s.CreateTimer(); err != nil {
		t.Fatalf("unexpected error creating first timer: %v", err)
	}
	if _, err := s.CreateTimer(); err != nil {
		t.Fatalf("unexpected error creating second timer: %v", err)
	}
	if _, err := s.CreateTimer(); err == nil {
		t.Fatal("expected OUT_OF_RESOURCES when pool is exhausted")
	}
}

func TestUnscheduleIsIdempotent(t *testing.T) {
	s := NewScheduler(DefaultPoolSize)
	t1, _ := s.CreateTimer()
	s.Schedule(t1, ListenerFunc(func(_ *Timer, _ int64) {}), 10)
	s.Unschedule(t1)
	s.Unschedule(t1)
	if s.SetTime(100) != 0 {
		t.Fatal("expected unscheduled timer not to fire")
	}
}
