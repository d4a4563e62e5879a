package periodic

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func Test_Scheduler_SingleInstance(t *testing.T) {
	s := NewScheduler()
	var active int32
	var overlap int32
	var runs int32
	s.Register("slow", 10*time.Millisecond, func(ctx context.Context) {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.AddInt32(&overlap, 1)
		}
		atomic.AddInt32(&runs, 1)
		time.Sleep(35 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	})
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()
	if atomic.LoadInt32(&overlap) != 0 {
		t.Fatalf("task instances overlapped")
	}
	// run count varies with ticker backlog; only concurrency is pinned down
	if got := atomic.LoadInt32(&runs); got < 1 {
		t.Fatalf("task never ran")
	}
}

func Test_Scheduler_TriggerAll(t *testing.T) {
	s := NewScheduler()
	var runs int32
	s.Register("a", time.Hour, func(ctx context.Context) { atomic.AddInt32(&runs, 1) })
	s.Register("b", time.Hour, func(ctx context.Context) { atomic.AddInt32(&runs, 1) })
	s.TriggerAll()
	if atomic.LoadInt32(&runs) != 2 {
		t.Fatalf("expected both tasks to run once, got %d", runs)
	}
	s.Stop()
}

func Test_Scheduler_PanicRecovered(t *testing.T) {
	s := NewScheduler()
	s.Register("boom", time.Hour, func(ctx context.Context) { panic("boom") })
	s.TriggerAll()
	s.TriggerAll()
	s.Stop()
}
