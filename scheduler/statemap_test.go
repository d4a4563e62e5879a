package scheduler

import (
	"testing"

	"github.com/licoproject/lico-core/entity"
)

func Test_MapState(t *testing.T) {
	cases := map[string]entity.JobState{
		"COMPLETED":     entity.StateCompleted,
		"FAILED":        entity.StateCompleted,
		"TIMEOUT":       entity.StateCompleted,
		"OUT_OF_MEMORY": entity.StateCompleted,
		"PENDING":       entity.StateQueuing,
		"REQUEUE_HOLD":  entity.StateQueuing,
		"RUNNING":       entity.StateRunning,
		"COMPLETING":    entity.StateRunning,
		"STAGE_OUT":     entity.StateRunning,
		"HOLD":          entity.StateHold,
		"RESV_DEL_HOLD": entity.StateHold,
		"SUSPENDED":     entity.StateSuspended,
		"WHATEVER":      entity.StateUnknown,
		"":              entity.StateUnknown,
	}
	for raw, want := range cases {
		if got := MapState(raw); got != want {
			t.Errorf("raw=%q got=%s want=%s", raw, got, want)
		}
	}
	t.Run("decorated", func(t *testing.T) {
		if got := MapState("CANCELLED by 0"); got != entity.StateCompleted {
			t.Errorf("got=%s", got)
		}
		if got := MapState("running"); got != entity.StateRunning {
			t.Errorf("got=%s", got)
		}
	})
}
