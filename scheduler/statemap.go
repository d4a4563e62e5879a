package scheduler

import (
	"strings"

	"github.com/licoproject/lico-core/entity"
)

// rawStateMap scheduler raw state to high-level state. Unlisted states map to
// Unknown.
var rawStateMap = map[string]entity.JobState{
	"BOOT_FAIL":     entity.StateCompleted,
	"CANCELLED":     entity.StateCompleted,
	"COMPLETED":     entity.StateCompleted,
	"DEADLINE":      entity.StateCompleted,
	"FAILED":        entity.StateCompleted,
	"NODE_FAIL":     entity.StateCompleted,
	"OUT_OF_MEMORY": entity.StateCompleted,
	"REVOKED":       entity.StateCompleted,
	"TIMEOUT":       entity.StateCompleted,

	"CONFIGURING":  entity.StateQueuing,
	"PENDING":      entity.StateQueuing,
	"PREEMPTED":    entity.StateQueuing,
	"REQUEUED":     entity.StateQueuing,
	"REQUEUE_FED":  entity.StateQueuing,
	"REQUEUE_HOLD": entity.StateQueuing,
	"SPECIAL_EXIT": entity.StateQueuing,

	"COMPLETING": entity.StateRunning,
	"RUNNING":    entity.StateRunning,
	"RESIZING":   entity.StateRunning,
	"SIGNALING":  entity.StateRunning,
	"STAGE_OUT":  entity.StateRunning,
	"STOPPED":    entity.StateRunning,

	"HOLD":          entity.StateHold,
	"RESV_DEL_HOLD": entity.StateHold,

	"SUSPENDED": entity.StateSuspended,
}

// MapState derives the high-level state from a scheduler raw state.
func MapState(raw string) entity.JobState {
	key := strings.ToUpper(strings.TrimSpace(raw))
	// squeue may decorate cancelled states, e.g. "CANCELLED by 0"
	if i := strings.IndexByte(key, ' '); i > 0 {
		key = key[:i]
	}
	if s, ok := rawStateMap[key]; ok {
		return s
	}
	return entity.StateUnknown
}
