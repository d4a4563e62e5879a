package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/licoproject/lico-core/entity"
)

type JobStore interface {
	CreateJob(ctx context.Context, q sqlx.ExtContext, job *entity.Job) (int64, error)
	UpdateJob(ctx context.Context, q sqlx.ExtContext, job *entity.Job) (int64, error)
	UpdateOperateState(ctx context.Context, q sqlx.ExtContext, jobId int64, state entity.OperateState) (int64, error)
	GetJob(ctx context.Context, jobId int64) (*entity.Job, error)
	GetJobForUpdate(ctx context.Context, tx *sqlx.Tx, jobId int64) (*entity.Job, error)
	GetJobByIdentity(ctx context.Context, identityStr string) (*entity.Job, error)
	GetWaitingJobs(ctx context.Context) ([]*entity.Job, error)
	GetRunningJobs(ctx context.Context) ([]*entity.Job, error)
	GetDirtyJobs(ctx context.Context) ([]*entity.Job, error)
	MarkJobDeleted(ctx context.Context, q sqlx.ExtContext, jobId int64) (int64, error)
	PageJobs(ctx context.Context, offset, limit int) ([]*entity.Job, error)
	CountJobs(ctx context.Context) (int64, error)
	CountJobsByState(ctx context.Context) (map[string]int64, error)
	CountJobsByQueue(ctx context.Context) (map[string]int64, error)
}

func NewJobStore() JobStore {
	return &jobStore{}
}

type jobStore struct{}

var waitingStates = []string{
	entity.StateQueuing.String(),
	entity.StateRunning.String(),
	entity.StateHold.String(),
	entity.StateSuspended.String(),
}

const jobColumns = "scheduler_id, identity_str, job_name, submitter, submit_time, start_time, end_time, runtime, workspace, job_content, job_file, queue, tres, memory_used, comment, raw_state, state, operate_state, stdout_file, stderr_file, exit_code, priority, reason, deleted, create_time, update_time"

func (s *jobStore) CreateJob(ctx context.Context, q sqlx.ExtContext, job *entity.Job) (int64, error) {
	res, err := q.ExecContext(ctx, "insert into job("+jobColumns+") values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		job.SchedulerId,
		job.IdentityStr,
		job.JobName,
		job.Submitter,
		job.SubmitTime,
		job.StartTime,
		job.EndTime,
		job.Runtime,
		job.Workspace,
		job.JobContent,
		job.JobFile,
		job.Queue,
		job.Tres,
		job.MemoryUsed,
		job.Comment,
		job.RawState,
		job.State,
		job.OperateState,
		job.StdoutFile,
		job.StderrFile,
		job.ExitCode,
		job.Priority,
		job.Reason,
		job.Deleted,
		job.CreateTime,
		job.UpdateTime,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *jobStore) UpdateJob(ctx context.Context, q sqlx.ExtContext, job *entity.Job) (int64, error) {
	res, err := q.ExecContext(ctx, "update job set scheduler_id = ?, identity_str = ?, job_name = ?, submitter = ?, submit_time = ?, start_time = ?, end_time = ?, runtime = ?, workspace = ?, job_file = ?, queue = ?, tres = ?, memory_used = ?, comment = ?, raw_state = ?, state = ?, operate_state = ?, stdout_file = ?, stderr_file = ?, exit_code = ?, priority = ?, reason = ?, update_time = ? where id = ?",
		job.SchedulerId, job.IdentityStr, job.JobName, job.Submitter, job.SubmitTime,
		job.StartTime, job.EndTime, job.Runtime, job.Workspace, job.JobFile, job.Queue,
		job.Tres, job.MemoryUsed, job.Comment, job.RawState, job.State, job.OperateState,
		job.StdoutFile, job.StderrFile, job.ExitCode, job.Priority, job.Reason,
		job.UpdateTime, job.Id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *jobStore) UpdateOperateState(ctx context.Context, q sqlx.ExtContext, jobId int64, state entity.OperateState) (int64, error) {
	res, err := q.ExecContext(ctx, "update job set operate_state = ? where id = ?", state, jobId)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *jobStore) GetJob(ctx context.Context, jobId int64) (*entity.Job, error) {
	res := &entity.Job{}
	err := db().GetContext(ctx, res, "select * from job where id = ? and deleted = 0;", jobId)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobStore) GetJobForUpdate(ctx context.Context, tx *sqlx.Tx, jobId int64) (*entity.Job, error) {
	res := &entity.Job{}
	err := tx.GetContext(ctx, res, "select * from job where id = ? and deleted = 0 for update;", jobId)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobStore) GetJobByIdentity(ctx context.Context, identityStr string) (*entity.Job, error) {
	res := &entity.Job{}
	err := db().GetContext(ctx, res, "select * from job where identity_str = ? and deleted = 0 order by id desc limit 1;", identityStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func stateList(states []string) string {
	return "'" + strings.Join(states, "', '") + "'"
}

func (s *jobStore) GetWaitingJobs(ctx context.Context) ([]*entity.Job, error) {
	var res []*entity.Job
	err := db().SelectContext(ctx, &res, "select * from job where state in ("+stateList(waitingStates)+") and deleted = 0 order by id asc;")
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobStore) GetRunningJobs(ctx context.Context) ([]*entity.Job, error) {
	var res []*entity.Job
	err := db().SelectContext(ctx, &res, "select * from job where state = ? and deleted = 0 order by id asc;", entity.StateRunning)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetDirtyJobs final jobs whose cancel request never observed the terminal pass.
func (s *jobStore) GetDirtyJobs(ctx context.Context) ([]*entity.Job, error) {
	var res []*entity.Job
	err := db().SelectContext(ctx, &res, "select * from job where state = ? and operate_state = ? and deleted = 0;", entity.StateCompleted, entity.OperateCancelling)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobStore) MarkJobDeleted(ctx context.Context, q sqlx.ExtContext, jobId int64) (int64, error) {
	res, err := q.ExecContext(ctx, "update job set deleted = 1 where id = ?", jobId)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *jobStore) PageJobs(ctx context.Context, offset, limit int) ([]*entity.Job, error) {
	var res []*entity.Job
	err := db().SelectContext(ctx, &res, "select * from job where deleted = 0 order by id desc limit ?, ?;", offset, limit)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobStore) CountJobs(ctx context.Context) (int64, error) {
	var count int64
	if err := db().GetContext(ctx, &count, "select count(*) from job where deleted = 0;"); err != nil {
		return 0, err
	}
	return count, nil
}

type groupCount struct {
	Key   string `db:"k"`
	Count int64  `db:"c"`
}

func (s *jobStore) CountJobsByState(ctx context.Context) (map[string]int64, error) {
	var rows []*groupCount
	err := db().SelectContext(ctx, &rows, "select state as k, count(*) as c from job where deleted = 0 group by state;")
	if err != nil {
		return nil, err
	}
	res := map[string]int64{}
	for _, r := range rows {
		res[r.Key] = r.Count
	}
	return res, nil
}

func (s *jobStore) CountJobsByQueue(ctx context.Context) (map[string]int64, error) {
	var rows []*groupCount
	err := db().SelectContext(ctx, &rows, "select queue as k, count(*) as c from job where deleted = 0 and state in ("+stateList(waitingStates)+") group by queue;")
	if err != nil {
		return nil, err
	}
	res := map[string]int64{}
	for _, r := range rows {
		res[r.Key] = r.Count
	}
	return res, nil
}
