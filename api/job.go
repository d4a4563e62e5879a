package api

import (
	"context"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/protocol"
	"github.com/licoproject/lico-core/pkg/verify"
	"github.com/licoproject/lico-core/scheduler"
)

// JobService is the slice of the job executor the handlers need.
type JobService interface {
	Submit(ctx context.Context, req *entity.SubmitRequest) (*entity.Job, error)
	Rerun(ctx context.Context, jobId int64) (*entity.Job, error)
	Cancel(ctx context.Context, jobId int64) (*entity.Job, error)
	Delete(ctx context.Context, jobId int64) (string, error)
	Hold(ctx context.Context, jobIds []int64) []*entity.BulkResult
	Release(ctx context.Context, jobIds []int64) []*entity.BulkResult
	Requeue(ctx context.Context, jobIds []int64) []*entity.BulkResult
	UpdatePriority(ctx context.Context, jobIds []int64, value string) []*entity.BulkResult
	Suspend(ctx context.Context, jobIds []int64) []*entity.BulkResult
	Resume(ctx context.Context, jobIds []int64) []*entity.BulkResult
	QueryQueues(ctx context.Context) ([]*scheduler.Queue, error)
	QueryHistoryJob(ctx context.Context, jobId int64) (*scheduler.Job, error)
}

var executor JobService

// Setup wires the executor before the router starts.
func Setup(s JobService) {
	executor = s
}

func GetCtx() context.Context {
	ctx, _ := context.WithTimeout(context.Background(), config.GetCfg().ApiTimeoutSecond)
	return ctx
}

func paramJobId(p httprouter.Params) (int64, error) {
	return strconv.ParseInt(p.ByName("job_id"), 10, 64)
}

func SubmitJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		protocol.FailedJson(w, errors.BodyReadError, err.Error())
		return
	}
	req := &entity.SubmitRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		protocol.FailedJson(w, errors.BodyDecodeError, err.Error())
		return
	}
	if err := verify.VerifySubmit(req.JobName, req.Submitter, req.JobFile, req.Workspace, req.JobContent); err != nil {
		protocol.FailedJson(w, errors.VerifyJobError, err.Error())
		return
	}
	job, err := executor.Submit(ctx, req)
	if err != nil {
		protocol.FailedJson(w, errors.SubmitJobError, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"id": job.Id, "job_file": job.JobFile})
}

func RerunJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	id, err := paramJobId(p)
	if err != nil {
		protocol.FailedJson(w, errors.JobIdError, err.Error())
		return
	}
	job, err := executor.Rerun(ctx, id)
	if err != nil {
		protocol.FailedJson(w, errors.SubmitJobError, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"id": job.Id, "job_file": job.JobFile})
}

func CancelJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	id, err := paramJobId(p)
	if err != nil {
		protocol.FailedJson(w, errors.JobIdError, err.Error())
		return
	}
	job, err := executor.Cancel(ctx, id)
	if err != nil {
		protocol.FailedJson(w, errors.SchedulerJobBase, err.Error())
		return
	}
	protocol.SuccessJson(w, job)
}

func DeleteJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	id, err := paramJobId(p)
	if err != nil {
		protocol.FailedJson(w, errors.JobIdError, err.Error())
		return
	}
	name, err := executor.Delete(ctx, id)
	if err != nil {
		protocol.FailedJson(w, errors.DeleteRunningJob, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"job_name": name})
}

func DescribeJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	id, err := paramJobId(p)
	if err != nil {
		protocol.FailedJson(w, errors.JobIdError, err.Error())
		return
	}
	job, err := storage.GetFactory().GetJob(ctx, id)
	if err != nil {
		protocol.FailedJson(w, errors.SqlQueryError, err.Error())
		return
	}
	if job == nil {
		protocol.FailedJson(w, errors.SqlNotFoundError, "")
		return
	}
	running, err := storage.GetFactory().GetJobRunning(ctx, id)
	if err != nil {
		protocol.FailedJson(w, errors.SqlQueryError, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"job": job, "running": running})
}

func ListRunningJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	jobs, err := storage.GetFactory().GetRunningJobs(ctx)
	if err != nil {
		protocol.FailedJson(w, errors.SqlQueryError, err.Error())
		return
	}
	protocol.SuccessJson(w, jobs)
}

func ListQueues(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	queues, err := executor.QueryQueues(ctx)
	if err != nil {
		protocol.FailedJson(w, errors.SchedulerJobBase, err.Error())
		return
	}
	if gres := r.URL.Query().Get("gres"); gres != "" {
		kept := make([]*scheduler.Queue, 0, len(queues))
		for _, q := range queues {
			if strings.Contains(q.Gres, gres) {
				kept = append(kept, q)
			}
		}
		queues = kept
	}
	protocol.SuccessJson(w, queues)
}

func HistoryJob(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	id, err := paramJobId(p)
	if err != nil {
		protocol.FailedJson(w, errors.JobIdError, err.Error())
		return
	}
	job, err := executor.QueryHistoryJob(ctx, id)
	if err != nil {
		protocol.FailedJson(w, errors.QueryJobDetail, err.Error())
		return
	}
	protocol.SuccessJson(w, job)
}

func bulkRequest(w http.ResponseWriter, r *http.Request) (*entity.BulkRequest, bool) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		protocol.FailedJson(w, errors.BodyReadError, err.Error())
		return nil, false
	}
	req := &entity.BulkRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		protocol.FailedJson(w, errors.BodyDecodeError, err.Error())
		return nil, false
	}
	if err := verify.VerifyJobIds(req.JobIds); err != nil {
		protocol.FailedJson(w, errors.InvalidParameter, err.Error())
		return nil, false
	}
	return req, true
}

func HoldJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := bulkRequest(w, r)
	if !ok {
		return
	}
	protocol.SuccessJson(w, executor.Hold(GetCtx(), req.JobIds))
}

func ReleaseJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := bulkRequest(w, r)
	if !ok {
		return
	}
	protocol.SuccessJson(w, executor.Release(GetCtx(), req.JobIds))
}

func RequeueJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := bulkRequest(w, r)
	if !ok {
		return
	}
	protocol.SuccessJson(w, executor.Requeue(GetCtx(), req.JobIds))
}

func UpdateJobPriority(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := bulkRequest(w, r)
	if !ok {
		return
	}
	if req.Value == "" {
		protocol.FailedJson(w, errors.InvalidJobPriority, "value is required")
		return
	}
	protocol.SuccessJson(w, executor.UpdatePriority(GetCtx(), req.JobIds, req.Value))
}

func SuspendJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := bulkRequest(w, r)
	if !ok {
		return
	}
	protocol.SuccessJson(w, executor.Suspend(GetCtx(), req.JobIds))
}

func ResumeJobs(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := bulkRequest(w, r)
	if !ok {
		return
	}
	protocol.SuccessJson(w, executor.Resume(GetCtx(), req.JobIds))
}
