package scheduler

import (
	"testing"
	"time"
)

func TestScheduleAfterFires(t *testing.T) {
	timer := NewSimpleTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	if _, err := timer.ScheduleAfter(10*time.Millisecond, func() { close(fired) }); err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled function did not fire")
	}
}

func TestCancelPreventsExecution(t *testing.T) {
	timer := NewSimpleTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	id, err := timer.ScheduleAfter(50*time.Millisecond, func() { close(fired) })
	if err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	if err := timer.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("cancelled timer still fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCancelUnknownIDIsNoop(t *testing.T) {
	timer := NewSimpleTimer()
	defer timer.Stop()
	if err := timer.Cancel("timer_missing"); err != nil {
		t.Errorf("cancelling an unknown timer should not error, got %v", err)
	}
}

func TestScheduleAtPastRunsImmediately(t *testing.T) {
	timer := NewSimpleTimer()
	defer timer.Stop()

	fired := make(chan struct{})
	if _, err := timer.ScheduleAt(time.Now().Add(-time.Minute), func() { close(fired) }); err != nil {
		t.Fatalf("ScheduleAt failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-due function did not run")
	}
}

func TestListActiveAndStop(t *testing.T) {
	timer := NewSimpleTimer()

	if _, err := timer.ScheduleAfter(time.Hour, func() {}); err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	if _, err := timer.ScheduleAfter(time.Hour, func() {}); err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	if got := len(timer.ListActive()); got != 2 {
		t.Errorf("expected 2 active timers, got %d", got)
	}

	timer.Stop()
	if got := len(timer.ListActive()); got != 0 {
		t.Errorf("expected no active timers after Stop, got %d", got)
	}
}
