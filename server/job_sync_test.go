package server

import (
	"testing"

	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/scheduler"
)

func Test_ParseComment(t *testing.T) {
	cases := []struct {
		comment string
		id      int64
		ok      bool
	}{
		{"LICO-42", 42, true},
		{"LICO-1", 1, true},
		{"LICO-", 0, false},
		{"LICO-abc", 0, false},
		{"LICO--5", 0, false},
		{"lico-42", 0, false},
		{"", 0, false},
		{"42", 0, false},
	}
	for _, c := range cases {
		id, ok := ParseComment(c.comment)
		if id != c.id || ok != c.ok {
			t.Errorf("ParseComment(%q) = (%d, %v), want (%d, %v)", c.comment, id, ok, c.id, c.ok)
		}
	}
}

func Test_Changed(t *testing.T) {
	base := func() *entity.Job {
		return &entity.Job{
			RawState:   "RUNNING",
			State:      entity.StateRunning,
			Queue:      "compute",
			StartTime:  1000,
			Runtime:    100,
			Priority:   "100",
			StdoutFile: "/out",
			StderrFile: "/err",
		}
	}
	same := func() *scheduler.Job {
		return &scheduler.Job{
			RawState:   "RUNNING",
			State:      entity.StateRunning,
			Queue:      "compute",
			StartTime:  1000,
			Runtime:    120,
			Priority:   "100",
			StdoutFile: "/out",
			StderrFile: "/err",
		}
	}
	t.Run("no_change_below_runtime_interval", func(t *testing.T) {
		if Changed(base(), same(), 60) {
			t.Fatal("runtime delta 20 under interval 60 must not count as change")
		}
	})
	t.Run("runtime_delta_over_interval", func(t *testing.T) {
		s := same()
		s.Runtime = 200
		if !Changed(base(), s, 60) {
			t.Fatal("runtime delta 100 over interval 60 must count")
		}
	})
	t.Run("raw_state", func(t *testing.T) {
		s := same()
		s.RawState = "COMPLETING"
		if !Changed(base(), s, 60) {
			t.Fatal("raw state change must count")
		}
	})
	t.Run("derived_state", func(t *testing.T) {
		s := same()
		s.RawState = "RUNNING"
		s.State = entity.StateCompleted
		if !Changed(base(), s, 60) {
			t.Fatal("derived state change must count")
		}
	})
	t.Run("end_time", func(t *testing.T) {
		s := same()
		s.EndTime = 2000
		if !Changed(base(), s, 60) {
			t.Fatal("end time must count")
		}
	})
	t.Run("empty_remote_fields_ignored", func(t *testing.T) {
		s := same()
		s.Queue = ""
		s.Priority = ""
		s.StdoutFile = ""
		s.StderrFile = ""
		if Changed(base(), s, 60) {
			t.Fatal("empty scheduler fields must not count as change")
		}
	})
	t.Run("memory_probe", func(t *testing.T) {
		s := same()
		s.MemoryUsed = 4096
		if !Changed(base(), s, 60) {
			t.Fatal("fresh memory sample must count")
		}
		j := base()
		j.MemoryUsed = 4096
		if Changed(j, s, 60) {
			t.Fatal("unchanged memory sample must not count")
		}
		s.MemoryUsed = 0
		j.MemoryUsed = 4096
		if Changed(j, s, 60) {
			t.Fatal("skipped probe must not count as change")
		}
	})
}

func Test_ApplyScheduler_memory(t *testing.T) {
	j := &entity.Job{State: entity.StateRunning, MemoryUsed: 2048}
	s := &scheduler.Job{State: entity.StateRunning, RawState: "RUNNING", MemoryUsed: 4096}
	ApplyScheduler(j, s)
	if j.MemoryUsed != 4096 {
		t.Fatalf("memory=%d", j.MemoryUsed)
	}
	// pass without a probe keeps the last sample
	s.MemoryUsed = 0
	ApplyScheduler(j, s)
	if j.MemoryUsed != 4096 {
		t.Fatalf("memory=%d", j.MemoryUsed)
	}
}

func Test_ApplyScheduler_tres(t *testing.T) {
	t.Run("allocating_overwrites", func(t *testing.T) {
		j := &entity.Job{State: entity.StateQueuing, Tres: "C:4,M:1G"}
		s := &scheduler.Job{State: entity.StateRunning, RawState: "RUNNING", Tres: "C:8,N:2"}
		ApplyScheduler(j, s)
		if j.Tres != "C:8,N:2" {
			t.Fatalf("allocating jobs take the scheduler tres wholesale, got %q", j.Tres)
		}
	})
	t.Run("running_merges_per_code", func(t *testing.T) {
		j := &entity.Job{State: entity.StateRunning, Tres: "C:4,M:1G,G/gpu:2"}
		s := &scheduler.Job{State: entity.StateRunning, RawState: "RUNNING", Tres: "C:8"}
		ApplyScheduler(j, s)
		if j.Tres != "C:8,M:1G,G/gpu:2" {
			t.Fatalf("merge must keep unmentioned codes, got %q", j.Tres)
		}
	})
	t.Run("empty_remote_tres_preserved", func(t *testing.T) {
		j := &entity.Job{State: entity.StateRunning, Tres: "C:4"}
		s := &scheduler.Job{State: entity.StateRunning, RawState: "RUNNING"}
		ApplyScheduler(j, s)
		if j.Tres != "C:4" {
			t.Fatalf("empty scheduler tres must not clear local, got %q", j.Tres)
		}
	})
}

func Test_ApplyScheduler_timestamps(t *testing.T) {
	t.Run("non_final_refreshes_start", func(t *testing.T) {
		j := &entity.Job{State: entity.StateQueuing, StartTime: 500}
		s := &scheduler.Job{State: entity.StateRunning, RawState: "RUNNING", StartTime: 900}
		ApplyScheduler(j, s)
		if j.StartTime != 900 {
			t.Fatalf("start_time = %d, want 900", j.StartTime)
		}
	})
	t.Run("final_keeps_start_unless_null", func(t *testing.T) {
		j := &entity.Job{State: entity.StateCompleted, StartTime: 900, EndTime: 1000}
		s := &scheduler.Job{State: entity.StateCompleted, RawState: "COMPLETED", StartTime: 950, EndTime: 1000}
		ApplyScheduler(j, s)
		if j.StartTime != 900 {
			t.Fatalf("final job start_time regressed to %d", j.StartTime)
		}
	})
	t.Run("clock_skew_guard", func(t *testing.T) {
		// local start after the scheduler's end means the clocks drifted
		j := &entity.Job{State: entity.StateCompleted, StartTime: 2000, EndTime: 2100}
		s := &scheduler.Job{State: entity.StateCompleted, RawState: "COMPLETED", StartTime: 900, EndTime: 1000}
		ApplyScheduler(j, s)
		if j.StartTime != 900 {
			t.Fatalf("skew guard must adopt the scheduler start, got %d", j.StartTime)
		}
	})
	t.Run("runtime_computed_when_unreported", func(t *testing.T) {
		j := &entity.Job{State: entity.StateRunning, StartTime: 100}
		s := &scheduler.Job{State: entity.StateCompleted, RawState: "COMPLETED", StartTime: 100, EndTime: 400, Runtime: -1}
		ApplyScheduler(j, s)
		if j.Runtime != 300 {
			t.Fatalf("runtime = %d, want 300", j.Runtime)
		}
	})
}

func Test_GraceFill(t *testing.T) {
	t.Run("running_job_backfills_end", func(t *testing.T) {
		j := &entity.Job{State: entity.StateRunning, SubmitTime: 50, StartTime: 100}
		GraceFill(j, 500)
		if j.State != entity.StateCompleted {
			t.Fatalf("state = %s, want completed", j.State)
		}
		if j.EndTime != 500 || j.Runtime != 400 {
			t.Fatalf("end=%d runtime=%d, want 500/400", j.EndTime, j.Runtime)
		}
	})
	t.Run("start_after_now_keeps_order", func(t *testing.T) {
		j := &entity.Job{State: entity.StateRunning, SubmitTime: 50, StartTime: 900}
		GraceFill(j, 500)
		if j.EndTime != 900 {
			t.Fatalf("end_time = %d, must not precede start_time", j.EndTime)
		}
	})
	t.Run("never_started_collapses_to_submit", func(t *testing.T) {
		j := &entity.Job{State: entity.StateQueuing, SubmitTime: 50}
		GraceFill(j, 500)
		if j.StartTime != 50 || j.EndTime != 50 || j.Runtime != 0 {
			t.Fatalf("got start=%d end=%d runtime=%d, want 50/50/0", j.StartTime, j.EndTime, j.Runtime)
		}
	})
}
