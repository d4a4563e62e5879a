// Package scheduler drives an external batch scheduler (Slurm, PBS, LSF)
// behind a uniform adapter. All operations run as a target Unix user.
package scheduler

import (
	"context"
	"fmt"

	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
)

// JobIdentity opaque scheduler identity. Id is the display id, IdentityStr the
// canonical requery key; AltIdentityStr covers schedulers whose display id and
// canonical id drift (PBS short vs full server name).
type JobIdentity struct {
	Id             string `json:"id"`
	IdentityStr    string `json:"identity_str"`
	AltIdentityStr string `json:"alt_identity_str"`
}

func (i JobIdentity) Empty() bool {
	return i.Id == "" && i.IdentityStr == ""
}

type RunningHost struct {
	Host string
	Tres string
}

// Job canonical scheduler-side job record.
type Job struct {
	Identity   JobIdentity
	Name       string
	Submitter  string
	Queue      string
	Comment    string
	SubmitTime int64
	StartTime  int64
	EndTime    int64
	Runtime    int64
	RawState   string
	State      entity.JobState
	Tres       string
	Running    []RunningHost
	StdoutFile string
	StderrFile string
	ExitCode   string
	Priority   string
	Reason     string
	MemoryUsed int64
}

type Queue struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Nodes  int64  `json:"nodes"`
	Cores  int64  `json:"cores"`
	Memory int64  `json:"memory"`
	Gres   string `json:"gres"`
}

// Adapter uniform capability over scheduler variants.
type Adapter interface {
	SubmitJob(ctx context.Context, content, name, comment string) (JobIdentity, error)
	SubmitJobFromFile(ctx context.Context, jobFile, comment string) (JobIdentity, error)
	QueryJob(ctx context.Context, id JobIdentity) (*Job, error)
	QueryRecentJobs(ctx context.Context, includeMemory bool) ([]*Job, error)
	QueryJobRawInfo(ctx context.Context, id JobIdentity) (string, error)
	CancelJob(ctx context.Context, id JobIdentity) error
	// RecycleResources is idempotent: releasing an already-released job succeeds.
	RecycleResources(ctx context.Context, id JobIdentity) error
	HoldJob(ctx context.Context, id JobIdentity) error
	ReleaseJob(ctx context.Context, id JobIdentity) error
	RequeueJob(ctx context.Context, id JobIdentity) error
	SuspendJob(ctx context.Context, id JobIdentity) error
	ResumeJob(ctx context.Context, id JobIdentity) error
	UpdateJobPriority(ctx context.Context, id JobIdentity, value string) error
	GetPriorityValue(ctx context.Context) (min, max int64, err error)
	QueryAvailableQueues(ctx context.Context) ([]*Queue, error)
	GetStatus(ctx context.Context) error
	GetRuntime(ctx context.Context, id JobIdentity) (int64, error)
	GetLicenseFeature(ctx context.Context) (map[string]int64, error)
	GetGresType(ctx context.Context) ([]string, error)
	GetSchedulerResource(ctx context.Context) (map[string]string, error)
	GetHistoryJob(ctx context.Context, id JobIdentity) (*Job, error)
	// ScriptSuffix for rendered job script file names.
	ScriptSuffix() string
}

// New builds an adapter running as user. Empty user is the admin identity
// used by the full sync mode.
func New(kind config.SchedulerKind, user string, cli *clientexec.Client) (Adapter, error) {
	switch kind {
	case config.Slurm:
		return NewSlurm(user, cli), nil
	case config.Pbs:
		return NewPbs(user, cli), nil
	case config.Lsf:
		return NewLsf(user, cli), nil
	}
	return nil, fmt.Errorf("unknown scheduler kind=%s", kind)
}
