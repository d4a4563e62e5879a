package entity

// JobState high-level state derived from the scheduler raw state
type JobState string

const (
	StateQueuing   JobState = "queuing"
	StateRunning   JobState = "running"
	StateHold      JobState = "hold"
	StateSuspended JobState = "suspended"
	StateCompleted JobState = "completed"
	StateUnknown   JobState = "unknown"
)

func (s JobState) String() string {
	return string(s)
}

// Waiting jobs are still owned by the scheduler.
func (s JobState) Waiting() bool {
	switch s {
	case StateQueuing, StateRunning, StateHold, StateSuspended:
		return true
	}
	return false
}

// Allocating jobs may have their resource layout changed wholesale by the scheduler.
func (s JobState) Allocating() bool {
	switch s {
	case StateQueuing, StateHold, StateSuspended:
		return true
	}
	return false
}

func (s JobState) Final() bool {
	return s == StateCompleted
}

// OperateState submission/cancellation sub-state, orthogonal to JobState
type OperateState string

const (
	OperateCreating   OperateState = "creating"
	OperateCreateFail OperateState = "create_fail"
	OperateCreated    OperateState = "created"
	OperateCancelling OperateState = "cancelling"
	OperateCancelled  OperateState = "cancelled"
)

func (s OperateState) String() string {
	return string(s)
}

// Job table job. Zero start_time/end_time means not yet observed.
type Job struct {
	Id           int64        `json:"id" db:"id"`
	SchedulerId  string       `json:"scheduler_id" db:"scheduler_id"`
	IdentityStr  string       `json:"identity_str" db:"identity_str"`
	JobName      string       `json:"job_name" db:"job_name"`
	Submitter    string       `json:"submitter" db:"submitter"`
	SubmitTime   int64        `json:"submit_time" db:"submit_time"`
	StartTime    int64        `json:"start_time" db:"start_time"`
	EndTime      int64        `json:"end_time" db:"end_time"`
	Runtime      int64        `json:"runtime" db:"runtime"`
	Workspace    string       `json:"workspace" db:"workspace"`
	JobContent   string       `json:"job_content" db:"job_content"`
	JobFile      string       `json:"job_file" db:"job_file"`
	Queue        string       `json:"queue" db:"queue"`
	Tres         string       `json:"tres" db:"tres"`
	MemoryUsed   int64        `json:"memory_used" db:"memory_used"`
	Comment      string       `json:"comment" db:"comment"`
	RawState     string       `json:"raw_state" db:"raw_state"`
	State        JobState     `json:"state" db:"state"`
	OperateState OperateState `json:"operate_state" db:"operate_state"`
	StdoutFile   string       `json:"stdout_file" db:"stdout_file"`
	StderrFile   string       `json:"stderr_file" db:"stderr_file"`
	ExitCode     string       `json:"exit_code" db:"exit_code"`
	Priority     string       `json:"priority" db:"priority"`
	Reason       string       `json:"reason" db:"reason"`
	Deleted      bool         `json:"-" db:"deleted"`
	CreateTime   int64        `json:"create_time" db:"create_time"`
	UpdateTime   int64        `json:"update_time" db:"update_time"`
}

// JobRunning table job_running, one row per host allocation
type JobRunning struct {
	Id           int64  `json:"id" db:"id"`
	JobId        int64  `json:"job_id" db:"job_id"`
	Hosts        string `json:"hosts" db:"hosts"`
	PerHostTres  string `json:"per_host_tres" db:"per_host_tres"`
	AllocateTime int64  `json:"allocate_time" db:"allocate_time"`
}

// JobCsres table job_csres, one row per reserved cross scheduler resource value
type JobCsres struct {
	Id         int64  `json:"id" db:"id"`
	JobId      int64  `json:"job_id" db:"job_id"`
	CsresCode  string `json:"csres_code" db:"csres_code"`
	CsresValue string `json:"csres_value" db:"csres_value"`
}
