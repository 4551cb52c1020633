package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolReschedulesImmediately(t *testing.T) {
	p := NewPool(50 * time.Millisecond)
	var runs int32

	p.Register("t", func(ctx context.Context) Progress {
		n := atomic.AddInt32(&runs, 1)
		if n >= 3 {
			return ProgressDone
		}
		return ProgressRescheduleNow
	})
	p.Activate("t", 0)

	deadline := time.After(2 * time.Second)
	for {
		if atomic.LoadInt32(&runs) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("task did not complete 3 runs in time, got %d", atomic.LoadInt32(&runs))
		case <-time.After(10 * time.Millisecond):
		}
	}

	if p.IsActive("t") {
		t.Error("task should be inactive after ProgressDone")
	}
}

func TestPoolBackoffDelay(t *testing.T) {
	p := NewPool(200 * time.Millisecond)
	var runs int32
	start := make(chan time.Time, 4)

	p.Register("t", func(ctx context.Context) Progress {
		start <- time.Now()
		if atomic.AddInt32(&runs, 1) >= 2 {
			return ProgressDone
		}
		return ProgressRescheduleBackoff
	})
	p.Activate("t", 0)

	first := <-start
	second := <-start
	if second.Sub(first) < 150*time.Millisecond {
		t.Errorf("expected backoff delay between runs, got %v", second.Sub(first))
	}
}

func TestDeactivateFromWithinTask(t *testing.T) {
	p := NewPool(10 * time.Millisecond)
	done := make(chan struct{})

	p.Register("self", func(ctx context.Context) Progress {
		p.Deactivate("self") // must not deadlock
		close(done)
		return ProgressRescheduleNow
	})
	p.Activate("self", 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("self-deactivation deadlocked")
	}
}

func TestActivateIsNoOpWhenAlreadyActive(t *testing.T) {
	p := NewPool(time.Second)
	p.Register("t", func(ctx context.Context) Progress { return ProgressRescheduleBackoff })
	p.Activate("t", time.Hour)
	p.Activate("t", 0) // should not reset the timer
	if !p.IsActive("t") {
		t.Error("expected task to remain active")
	}
}
