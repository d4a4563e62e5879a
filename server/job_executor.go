package server

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/csres"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/constant"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/protocol"
	"github.com/licoproject/lico-core/scheduler"
)

// JobExecutor owns the submission pipeline and the operator-facing job
// operations. Adapters are built per submitter; rendering reserves cross
// scheduler resources under the per-code file lock.
type JobExecutor struct {
	adapterFor AdapterFactory
	allocators map[string]csres.Allocator
	lockDir    string
	exec       *clientexec.Client
	now        func() time.Time
}

func NewJobExecutor(cfg *config.Config, adapterFor AdapterFactory, exec *clientexec.Client) *JobExecutor {
	return &JobExecutor{
		adapterFor: adapterFor,
		allocators: map[string]csres.Allocator{
			constant.CsresPort.String(): csres.NewPortAllocator(cfg.Csres.PortBegin, cfg.Csres.PortEnd),
		},
		lockDir: cfg.Csres.LockFileDir,
		exec:    exec,
		now:     time.Now,
	}
}

// Submit runs the pipeline: insert the job row, render placeholders, write
// the script file, submit to the scheduler, fold the first query back in.
// A failed submission is persisted as create_fail/completed before the error
// surfaces, so state is never lost.
func (e *JobExecutor) Submit(ctx context.Context, req *entity.SubmitRequest) (*entity.Job, error) {
	adapter, err := e.adapterFor(req.Submitter)
	if err != nil {
		return nil, err
	}
	now := e.now().Unix()
	job := &entity.Job{
		JobName:      req.JobName,
		Submitter:    req.Submitter,
		SubmitTime:   now,
		Workspace:    req.Workspace,
		JobContent:   req.JobContent,
		JobFile:      req.JobFile,
		State:        entity.StateQueuing,
		OperateState: entity.OperateCreating,
		CreateTime:   now,
		UpdateTime:   now,
	}
	renderer := csres.NewRenderer(e.lockDir, e.allocators)
	defer renderer.Release()
	var submitErr error
	err = storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		id, err := storage.GetFactory().CreateJob(ctx, tx, job)
		if err != nil {
			return err
		}
		job.Id = id
		job.Comment = constant.CommentPrefix + strconv.FormatInt(id, 10)

		if req.JobContent != "" {
			rendered, err := renderer.Render(ctx, tx, id, req.JobContent)
			if err != nil {
				if _, derr := storage.GetFactory().DeleteJobCsres(ctx, tx, id); derr != nil {
					return derr
				}
				e.markCreateFail(ctx, tx, job, err)
				submitErr = err
				return nil
			}
			jobFile, err := e.writeScript(ctx, req, id, rendered, adapter.ScriptSuffix())
			if err != nil {
				e.markCreateFail(ctx, tx, job, err)
				submitErr = errors.NewSubmitError(id, err.Error())
				return nil
			}
			job.JobFile = jobFile
			if _, err := storage.GetFactory().UpdateJob(ctx, tx, job); err != nil {
				return err
			}
		} else if _, err := os.Stat(req.JobFile); err != nil {
			e.markCreateFail(ctx, tx, job, errors.JobFileNotExist)
			submitErr = errors.NewSubmitError(id, errors.JobFileNotExist.Cause)
			return nil
		}

		identity, err := adapter.SubmitJobFromFile(ctx, job.JobFile, job.Comment)
		if err != nil {
			e.markCreateFail(ctx, tx, job, err)
			submitErr = errors.NewSubmitError(id, err.Error())
			return nil
		}
		job.SchedulerId = identity.Id
		job.IdentityStr = identity.IdentityStr

		if s, err := adapter.QueryJob(ctx, identity); err != nil {
			log.Logger().Warn("JobExecutor.Submit job_id=%d first query failed cause=%s", id, err.Error())
		} else if s != nil {
			ApplyScheduler(job, s)
		}
		job.OperateState = entity.OperateCreated
		job.UpdateTime = e.now().Unix()
		_, err = storage.GetFactory().UpdateJob(ctx, tx, job)
		return err
	})
	if err != nil {
		return nil, err
	}
	if submitErr != nil {
		protocol.SubmitTotal.WithLabelValues("failed").Inc()
		return nil, submitErr
	}
	protocol.SubmitTotal.WithLabelValues("success").Inc()
	log.Logger().Info("JobExecutor.Submit job_id=%d scheduler_id=%s submitter=%s", job.Id, job.SchedulerId, job.Submitter)
	return job, nil
}

// markCreateFail records the failure inside the open transaction; the caller
// commits so the row survives the raised error.
func (e *JobExecutor) markCreateFail(ctx context.Context, tx *sqlx.Tx, job *entity.Job, cause error) {
	job.OperateState = entity.OperateCreateFail
	job.State = entity.StateCompleted
	job.Reason = cause.Error()
	job.EndTime = e.now().Unix()
	job.UpdateTime = job.EndTime
	if _, err := storage.GetFactory().UpdateJob(ctx, tx, job); err != nil {
		log.Logger().Error("JobExecutor.markCreateFail job_id=%d failed cause=%s", job.Id, err.Error())
	}
}

func (e *JobExecutor) writeScript(ctx context.Context, req *entity.SubmitRequest, id int64, rendered, suffix string) (string, error) {
	name := fmt.Sprintf("%s_%d_%s.%s", req.JobName, id, e.now().Format("200601021504"), suffix)
	jobFile := filepath.Join(req.Workspace, name)
	if err := ioutil.WriteFile(jobFile, []byte(rendered), 0600); err != nil {
		return "", fmt.Errorf("write job file %s failed cause=%s", jobFile, err.Error())
	}
	if _, err := e.exec.RunAs(ctx, "", "chown", req.Submitter, jobFile); err != nil {
		return "", fmt.Errorf("chown job file %s failed cause=%s", jobFile, err.Error())
	}
	return jobFile, nil
}

// Rerun submits a fresh job from the original's script and workspace. Cross
// scheduler resources are freshly allocated; the original row is untouched.
func (e *JobExecutor) Rerun(ctx context.Context, jobId int64) (*entity.Job, error) {
	orig, err := storage.GetFactory().GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if orig == nil {
		return nil, errors.SqlNotFoundError
	}
	req := &entity.SubmitRequest{
		JobName:   orig.JobName,
		Submitter: orig.Submitter,
	}
	if orig.JobContent != "" {
		req.Workspace = orig.Workspace
		req.JobContent = orig.JobContent
	} else {
		if _, err := os.Stat(orig.JobFile); err != nil {
			return nil, errors.JobFileNotExist
		}
		req.JobFile = orig.JobFile
	}
	return e.Submit(ctx, req)
}

// Cancel requests cancellation. A job already in a terminal state is a no-op
// that still returns the current snapshot. On adapter failure the prior
// operate state is restored before the error surfaces; a failing restore is
// logged only.
func (e *JobExecutor) Cancel(ctx context.Context, jobId int64) (*entity.Job, error) {
	var snapshot *entity.Job
	var prior entity.OperateState
	terminal := false
	err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		j, err := storage.GetFactory().GetJobForUpdate(ctx, tx, jobId)
		if err != nil {
			return err
		}
		snapshot = j
		prior = j.OperateState
		if j.State.Final() {
			terminal = true
			return nil
		}
		_, err = storage.GetFactory().UpdateOperateState(ctx, tx, jobId, entity.OperateCancelling)
		return err
	})
	if err != nil {
		return nil, err
	}
	if terminal {
		return snapshot, nil
	}
	adapter, err := e.adapterFor(snapshot.Submitter)
	if err == nil {
		err = adapter.CancelJob(ctx, scheduler.JobIdentity{Id: snapshot.SchedulerId, IdentityStr: snapshot.IdentityStr})
	}
	if err != nil {
		// best-effort revert; a failing restore is logged, the original
		// error still surfaces
		if _, rerr := storage.GetFactory().UpdateOperateState(ctx, storage.Db(), jobId, prior); rerr != nil {
			log.Logger().Error("JobExecutor.Cancel job_id=%d restore operate_state failed cause=%s", jobId, rerr.Error())
		}
		return nil, err
	}
	snapshot.OperateState = entity.OperateCancelling
	return snapshot, nil
}

// Delete refuses while the job is still owned by the scheduler.
func (e *JobExecutor) Delete(ctx context.Context, jobId int64) (string, error) {
	var name string
	err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		j, err := storage.GetFactory().GetJobForUpdate(ctx, tx, jobId)
		if err != nil {
			return err
		}
		if j.State.Waiting() {
			return errors.DeleteRunningJob
		}
		if _, err := storage.GetFactory().MarkJobDeleted(ctx, tx, jobId); err != nil {
			return err
		}
		name = j.JobName
		return nil
	})
	return name, err
}

type bulkOp func(ctx context.Context, adapter scheduler.Adapter, identity scheduler.JobIdentity) error

func (e *JobExecutor) bulk(ctx context.Context, jobIds []int64, op bulkOp) []*entity.BulkResult {
	results := make([]*entity.BulkResult, 0, len(jobIds))
	for _, id := range jobIds {
		res := &entity.BulkResult{JobId: id}
		j, err := storage.GetFactory().GetJob(ctx, id)
		if err == nil && j == nil {
			err = errors.SqlNotFoundError
		}
		if err == nil {
			var adapter scheduler.Adapter
			adapter, err = e.adapterFor(j.Submitter)
			if err == nil {
				err = op(ctx, adapter, scheduler.JobIdentity{Id: j.SchedulerId, IdentityStr: j.IdentityStr})
			}
		}
		if err != nil {
			res.Cause = err.Error()
		} else {
			res.Ok = true
		}
		results = append(results, res)
	}
	return results
}

func (e *JobExecutor) Hold(ctx context.Context, jobIds []int64) []*entity.BulkResult {
	return e.bulk(ctx, jobIds, func(ctx context.Context, a scheduler.Adapter, id scheduler.JobIdentity) error {
		return a.HoldJob(ctx, id)
	})
}

func (e *JobExecutor) Release(ctx context.Context, jobIds []int64) []*entity.BulkResult {
	return e.bulk(ctx, jobIds, func(ctx context.Context, a scheduler.Adapter, id scheduler.JobIdentity) error {
		return a.ReleaseJob(ctx, id)
	})
}

func (e *JobExecutor) Requeue(ctx context.Context, jobIds []int64) []*entity.BulkResult {
	return e.bulk(ctx, jobIds, func(ctx context.Context, a scheduler.Adapter, id scheduler.JobIdentity) error {
		return a.RequeueJob(ctx, id)
	})
}

func (e *JobExecutor) UpdatePriority(ctx context.Context, jobIds []int64, value string) []*entity.BulkResult {
	return e.bulk(ctx, jobIds, func(ctx context.Context, a scheduler.Adapter, id scheduler.JobIdentity) error {
		return a.UpdateJobPriority(ctx, id, value)
	})
}

func (e *JobExecutor) Suspend(ctx context.Context, jobIds []int64) []*entity.BulkResult {
	return e.bulk(ctx, jobIds, func(ctx context.Context, a scheduler.Adapter, id scheduler.JobIdentity) error {
		return a.SuspendJob(ctx, id)
	})
}

func (e *JobExecutor) Resume(ctx context.Context, jobIds []int64) []*entity.BulkResult {
	return e.bulk(ctx, jobIds, func(ctx context.Context, a scheduler.Adapter, id scheduler.JobIdentity) error {
		return a.ResumeJob(ctx, id)
	})
}

// QueryQueues lists the scheduler's available queues as the admin identity.
func (e *JobExecutor) QueryQueues(ctx context.Context) ([]*scheduler.Queue, error) {
	adapter, err := e.adapterFor("")
	if err != nil {
		return nil, err
	}
	return adapter.QueryAvailableQueues(ctx)
}

// QueryHistoryJob reads a finished job from the scheduler's accounting store.
func (e *JobExecutor) QueryHistoryJob(ctx context.Context, jobId int64) (*scheduler.Job, error) {
	j, err := storage.GetFactory().GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, errors.SqlNotFoundError
	}
	adapter, err := e.adapterFor(j.Submitter)
	if err != nil {
		return nil, err
	}
	return adapter.GetHistoryJob(ctx, scheduler.JobIdentity{Id: j.SchedulerId, IdentityStr: j.IdentityStr})
}
