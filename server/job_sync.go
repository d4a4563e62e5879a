package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	json "github.com/json-iterator/go"
	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/constant"
	"github.com/licoproject/lico-core/pkg/protocol"
	"github.com/licoproject/lico-core/pkg/tres"
	"github.com/licoproject/lico-core/pkg/utils"
	"github.com/licoproject/lico-core/scheduler"
)

// AdapterFactory builds a scheduler adapter running as user. Empty user is
// the admin identity used by the full sync mode.
type AdapterFactory func(user string) (scheduler.Adapter, error)

// Publisher is the slice of the event bus the sync engine needs.
type Publisher interface {
	Publish(topic string, message interface{}) error
}

// SyncEngine reconciles the job table against the scheduler. One pass reads
// every waiting job, pairs it with the scheduler's view and applies the
// differences, one transaction per job. The missing-jobs cache and the
// memory-probe timestamp are engine state, rebuilt on restart.
type SyncEngine struct {
	mode       config.SyncMode
	adapterFor AdapterFactory
	events     Publisher

	memoryInterval  time.Duration
	runtimeInterval int64
	maintainable    time.Duration

	lastMemoryQuery int64
	missing         map[int64]int64

	now func() time.Time
}

func NewSyncEngine(cfg *config.Config, adapterFor AdapterFactory, events Publisher) *SyncEngine {
	return &SyncEngine{
		mode:            cfg.Job.SyncMode,
		adapterFor:      adapterFor,
		events:          events,
		memoryInterval:  cfg.Job.SyncMemoryInterval,
		runtimeInterval: cfg.Job.SyncRuntimeInterval,
		maintainable:    cfg.Job.SchedulerMaintainable,
		missing:         map[int64]int64{},
		now:             time.Now,
	}
}

// Sync runs one pass. Per-job failures are logged and do not abort the pass.
func (e *SyncEngine) Sync(ctx context.Context) {
	locals, err := storage.GetFactory().GetWaitingJobs(ctx)
	if err != nil {
		log.Logger().Error("SyncEngine.Sync GetWaitingJobs failed cause=%s", err.Error())
		return
	}
	includeMemory := false
	now := e.now().Unix()
	if now-e.lastMemoryQuery >= int64(e.memoryInterval/time.Second) {
		includeMemory = true
		e.lastMemoryQuery = now
	}
	switch e.mode {
	case config.SyncOwns:
		e.syncOwns(ctx, locals, includeMemory)
	default:
		e.syncFull(ctx, locals, includeMemory)
	}
	e.cleanDirtyJobs(ctx)
	protocol.SyncPassTotal.Inc()
}

func (e *SyncEngine) syncFull(ctx context.Context, locals []*entity.Job, includeMemory bool) {
	adapter, err := e.adapterFor("")
	if err != nil {
		log.Logger().Error("SyncEngine.syncFull build adapter failed cause=%s", err.Error())
		return
	}
	remotes, err := adapter.QueryRecentJobs(ctx, includeMemory)
	if err != nil {
		log.Logger().Error("SyncEngine.syncFull QueryRecentJobs failed cause=%s", err.Error())
		return
	}
	seen := map[int64]bool{}
	byId := map[int64]*entity.Job{}
	byIdentity := map[string]*entity.Job{}
	for _, j := range locals {
		byId[j.Id] = j
		if j.IdentityStr != "" {
			byIdentity[j.IdentityStr] = j
		}
	}
	for _, s := range remotes {
		local := e.pair(ctx, s, byId, byIdentity)
		if local == nil {
			continue
		}
		seen[local.Id] = true
		delete(e.missing, local.Id)
		if err := e.syncOne(ctx, local.Id, s); err != nil {
			log.Logger().Error("SyncEngine.syncFull job_id=%d sync failed cause=%s", local.Id, err.Error())
		}
	}
	for _, j := range locals {
		if seen[j.Id] {
			continue
		}
		e.handleMissing(ctx, j)
	}
}

func (e *SyncEngine) syncOwns(ctx context.Context, locals []*entity.Job, includeMemory bool) {
	adapters := map[string]scheduler.Adapter{}
	for _, j := range locals {
		adapter, ok := adapters[j.Submitter]
		if !ok {
			var err error
			adapter, err = e.adapterFor(j.Submitter)
			if err != nil {
				log.Logger().Error("SyncEngine.syncOwns build adapter submitter=%s failed cause=%s", j.Submitter, err.Error())
				continue
			}
			adapters[j.Submitter] = adapter
		}
		if j.IdentityStr == "" {
			continue
		}
		s, err := adapter.QueryJob(ctx, scheduler.JobIdentity{Id: j.SchedulerId, IdentityStr: j.IdentityStr})
		if err != nil {
			log.Logger().Warn("SyncEngine.syncOwns job_id=%d query failed cause=%s", j.Id, err.Error())
			s = nil
		}
		if s == nil {
			e.handleMissing(ctx, j)
			continue
		}
		if !includeMemory {
			s.MemoryUsed = 0
		}
		delete(e.missing, j.Id)
		if err := e.syncOne(ctx, j.Id, s); err != nil {
			log.Logger().Error("SyncEngine.syncOwns job_id=%d sync failed cause=%s", j.Id, err.Error())
		}
	}
}

// pair matches a scheduler record to a local job, or ingests it as a
// console-submitted job. Returns nil when the record should be skipped.
func (e *SyncEngine) pair(ctx context.Context, s *scheduler.Job, byId map[int64]*entity.Job, byIdentity map[string]*entity.Job) *entity.Job {
	if id, ok := ParseComment(s.Comment); ok {
		if j, ok := byId[id]; ok {
			return j
		}
	}
	if j, ok := byIdentity[s.Identity.IdentityStr]; ok {
		return j
	}
	if s.Identity.AltIdentityStr != "" {
		if j, ok := byIdentity[s.Identity.AltIdentityStr]; ok {
			return j
		}
	}
	// not in the waiting set; re-match against the whole table
	if id, ok := ParseComment(s.Comment); ok {
		j, err := storage.GetFactory().GetJob(ctx, id)
		if err != nil {
			log.Logger().Error("SyncEngine.pair rematch id=%d failed cause=%s", id, err.Error())
			return nil
		}
		if j != nil {
			return j
		}
	}
	if s.Identity.IdentityStr != "" {
		j, err := storage.GetFactory().GetJobByIdentity(ctx, s.Identity.IdentityStr)
		if err != nil {
			log.Logger().Error("SyncEngine.pair rematch identity=%s failed cause=%s", s.Identity.IdentityStr, err.Error())
			return nil
		}
		if j != nil {
			return j
		}
	}
	return e.ingestConsoleJob(ctx, s)
}

// ingestConsoleJob records a job submitted outside this system.
func (e *SyncEngine) ingestConsoleJob(ctx context.Context, s *scheduler.Job) *entity.Job {
	now := e.now().Unix()
	j := &entity.Job{
		SchedulerId:  s.Identity.Id,
		IdentityStr:  s.Identity.IdentityStr,
		JobName:      utils.Truncate(s.Name, constant.MaxJobNameLen),
		Submitter:    s.Submitter,
		SubmitTime:   s.SubmitTime,
		State:        entity.StateQueuing,
		RawState:     s.RawState,
		OperateState: entity.OperateCreating,
		CreateTime:   now,
		UpdateTime:   now,
	}
	err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		id, err := storage.GetFactory().CreateJob(ctx, tx, j)
		if err != nil {
			return err
		}
		j.Id = id
		return nil
	})
	if err != nil {
		log.Logger().Error("SyncEngine.ingestConsoleJob name=%s identity=%s failed cause=%s", s.Name, s.Identity.IdentityStr, err.Error())
		return nil
	}
	log.Logger().Info("SyncEngine.ingestConsoleJob job_id=%d identity=%s submitter=%s", j.Id, j.IdentityStr, j.Submitter)
	return j
}

// syncOne applies one scheduler record to one local job in one transaction.
func (e *SyncEngine) syncOne(ctx context.Context, jobId int64, s *scheduler.Job) error {
	var transitioned *entity.Job
	err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		j, err := storage.GetFactory().GetJobForUpdate(ctx, tx, jobId)
		if err != nil {
			return err
		}
		if !Changed(j, s, e.runtimeInterval) {
			return nil
		}
		wasWaiting := j.State.Waiting()
		prior := j.State
		ApplyScheduler(j, s)
		j.UpdateTime = e.now().Unix()
		if j.OperateState == entity.OperateCreating {
			j.OperateState = entity.OperateCreated
		}
		if s.State == entity.StateCompleted && strings.HasPrefix(strings.ToUpper(s.RawState), "CANCELLED") {
			j.OperateState = entity.OperateCancelled
		}
		if _, err := storage.GetFactory().UpdateJob(ctx, tx, j); err != nil {
			return err
		}
		if err := e.syncRunning(ctx, tx, j, s); err != nil {
			return err
		}
		if wasWaiting && j.State.Final() && prior != entity.StateUnknown {
			transitioned = j
		}
		protocol.SyncJobUpdated.Inc()
		return nil
	})
	if err != nil {
		return err
	}
	if transitioned != nil {
		e.onFinal(ctx, transitioned, s)
	}
	return nil
}

// Changed reports whether the scheduler record differs enough from the local
// job to justify a write.
func Changed(j *entity.Job, s *scheduler.Job, runtimeInterval int64) bool {
	if j.RawState != s.RawState {
		return true
	}
	if s.Queue != "" && j.Queue != s.Queue {
		return true
	}
	if s.StartTime != 0 && j.StartTime != s.StartTime {
		return true
	}
	if s.EndTime != 0 && j.EndTime != s.EndTime {
		return true
	}
	if s.StdoutFile != "" && j.StdoutFile != s.StdoutFile {
		return true
	}
	if s.StderrFile != "" && j.StderrFile != s.StderrFile {
		return true
	}
	if s.Priority != "" && j.Priority != s.Priority {
		return true
	}
	if s.Runtime >= 0 && s.Runtime-j.Runtime > runtimeInterval {
		return true
	}
	if s.MemoryUsed > 0 && j.MemoryUsed != s.MemoryUsed {
		return true
	}
	if j.State != s.State {
		return true
	}
	return false
}

// ApplyScheduler folds a scheduler record into the local job following the
// update rules: timestamps never regress unless the clock skew guard fires,
// resources are overwritten wholesale while allocating and merged per-code
// afterwards.
func ApplyScheduler(j *entity.Job, s *scheduler.Job) {
	wasAllocating := j.State.Allocating()
	wasFinal := j.State.Final()

	if s.Identity.Id != "" {
		j.SchedulerId = s.Identity.Id
	}
	if s.Identity.IdentityStr != "" {
		j.IdentityStr = s.Identity.IdentityStr
	}
	j.RawState = s.RawState
	j.State = s.State

	if s.StartTime != 0 {
		if !wasFinal || j.StartTime == 0 || (s.EndTime != 0 && j.StartTime > s.EndTime) {
			j.StartTime = s.StartTime
		}
	}
	if s.EndTime != 0 {
		if !wasFinal || j.EndTime == 0 || j.EndTime > s.EndTime {
			j.EndTime = s.EndTime
		}
	}
	if s.Runtime >= 0 {
		j.Runtime = s.Runtime
	} else if j.StartTime != 0 && j.EndTime != 0 {
		j.Runtime = j.EndTime - j.StartTime
	}

	if s.Submitter != "" {
		j.Submitter = s.Submitter
	}
	if s.Queue != "" {
		j.Queue = s.Queue
	}
	if s.SubmitTime != 0 {
		j.SubmitTime = s.SubmitTime
	}
	if s.StdoutFile != "" {
		j.StdoutFile = s.StdoutFile
	}
	if s.StderrFile != "" {
		j.StderrFile = s.StderrFile
	}
	if s.Comment != "" {
		j.Comment = s.Comment
	}
	if s.ExitCode != "" {
		j.ExitCode = s.ExitCode
	}
	if s.Priority != "" {
		j.Priority = s.Priority
	}
	if s.Reason != "" {
		j.Reason = s.Reason
	}
	if s.Tres != "" {
		if wasAllocating {
			j.Tres = s.Tres
		} else {
			j.Tres = tres.Merge(j.Tres, s.Tres)
		}
	}
	// zero means the probe was skipped this pass, not that usage dropped
	if s.MemoryUsed > 0 {
		j.MemoryUsed = s.MemoryUsed
	}
}

func (e *SyncEngine) syncRunning(ctx context.Context, tx *sqlx.Tx, j *entity.Job, s *scheduler.Job) error {
	if len(s.Running) == 0 {
		return nil
	}
	wasAllocating := j.State.Allocating()
	existing := map[string]string{}
	rows, err := storage.GetFactory().GetJobRunning(ctx, j.Id)
	if err != nil {
		return err
	}
	for _, r := range rows {
		existing[r.Hosts] = r.PerHostTres
	}
	if _, err := storage.GetFactory().DeleteStaleRunning(ctx, tx, j.Id, j.StartTime); err != nil {
		return err
	}
	for _, h := range s.Running {
		perHost := h.Tres
		if prior, ok := existing[h.Host]; ok && !wasAllocating {
			perHost = tres.Merge(prior, h.Tres)
		}
		row := &entity.JobRunning{
			JobId:        j.Id,
			Hosts:        h.Host,
			PerHostTres:  perHost,
			AllocateTime: j.StartTime,
		}
		if err := storage.GetFactory().UpsertJobRunning(ctx, tx, row); err != nil {
			return err
		}
	}
	return nil
}

// handleMissing applies the maintainable-time grace to a job the scheduler
// no longer reports.
func (e *SyncEngine) handleMissing(ctx context.Context, j *entity.Job) {
	now := e.now().Unix()
	first, ok := e.missing[j.Id]
	if !ok {
		e.missing[j.Id] = now
		log.Logger().Warn("SyncEngine job_id=%d missing from scheduler, grace started", j.Id)
		return
	}
	if now-first < int64(e.maintainable/time.Second) {
		return
	}
	delete(e.missing, j.Id)
	var final *entity.Job
	err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		cur, err := storage.GetFactory().GetJobForUpdate(ctx, tx, j.Id)
		if err != nil {
			return err
		}
		if !cur.State.Waiting() {
			return nil
		}
		GraceFill(cur, now)
		if _, err := storage.GetFactory().UpdateJob(ctx, tx, cur); err != nil {
			return err
		}
		final = cur
		return nil
	})
	if err != nil {
		log.Logger().Error("SyncEngine.handleMissing job_id=%d force complete failed cause=%s", j.Id, err.Error())
		return
	}
	if final == nil {
		return
	}
	log.Logger().Warn("SyncEngine job_id=%d grace expired, forced to completed", final.Id)
	// identity may be stale: no recycle, and no charge without a reliable
	// end state; only notification is attempted
	e.publish(config.GetCfg().NotifyTopic, constant.EventNotify, final)
}

// GraceFill forces a scheduler-lost job to completed, back-filling the
// timestamps that were never observed: end never precedes start, and a job
// that never started collapses onto its submit time with zero runtime.
func GraceFill(j *entity.Job, now int64) {
	j.State = entity.StateCompleted
	if j.EndTime == 0 {
		j.EndTime = now
		if j.StartTime > j.EndTime {
			j.EndTime = j.StartTime
		}
	}
	if j.StartTime == 0 {
		j.StartTime = j.SubmitTime
		j.EndTime = j.SubmitTime
		j.Runtime = 0
	} else if j.Runtime == 0 {
		j.Runtime = j.EndTime - j.StartTime
	}
	j.UpdateTime = now
}

// onFinal runs the terminal-transition hooks. Failures are logged only.
func (e *SyncEngine) onFinal(ctx context.Context, j *entity.Job, s *scheduler.Job) {
	adapter, err := e.adapterFor(e.recycleUser(j))
	if err != nil {
		log.Logger().Error("SyncEngine.onFinal job_id=%d build adapter failed cause=%s", j.Id, err.Error())
	} else if err := adapter.RecycleResources(ctx, scheduler.JobIdentity{Id: j.SchedulerId, IdentityStr: j.IdentityStr}); err != nil {
		log.Logger().Error("SyncEngine.onFinal job_id=%d recycle failed cause=%s", j.Id, err.Error())
	}
	e.publish(config.GetCfg().ChargeTopic, constant.EventCharge, j)
	e.publish(config.GetCfg().NotifyTopic, constant.EventNotify, j)
}

func (e *SyncEngine) recycleUser(j *entity.Job) string {
	if e.mode == config.SyncOwns {
		return j.Submitter
	}
	return ""
}

func (e *SyncEngine) publish(topic, event string, j *entity.Job) {
	if e.events == nil {
		return
	}
	msg := &entity.JobEventMessage{
		MessageId: utils.UUID(),
		Event:     event,
		Job:       jobPayload(j),
		Timestamp: e.now().Unix(),
	}
	if err := e.events.Publish(topic, msg); err != nil {
		log.Logger().Error("SyncEngine.publish topic=%s job_id=%d failed cause=%s", topic, j.Id, err.Error())
	}
}

func jobPayload(j *entity.Job) map[string]interface{} {
	b, err := json.Marshal(j)
	if err != nil {
		return map[string]interface{}{"id": j.Id}
	}
	payload := map[string]interface{}{}
	if err := json.Unmarshal(b, &payload); err != nil {
		return map[string]interface{}{"id": j.Id}
	}
	return payload
}

// cleanDirtyJobs flips completed jobs stuck in the cancelling sub-state.
func (e *SyncEngine) cleanDirtyJobs(ctx context.Context) {
	jobs, err := storage.GetFactory().GetDirtyJobs(ctx)
	if err != nil {
		log.Logger().Error("SyncEngine.cleanDirtyJobs query failed cause=%s", err.Error())
		return
	}
	for _, j := range jobs {
		err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
			_, err := storage.GetFactory().UpdateOperateState(ctx, tx, j.Id, entity.OperateCancelled)
			return err
		})
		if err != nil {
			log.Logger().Error("SyncEngine.cleanDirtyJobs job_id=%d failed cause=%s", j.Id, err.Error())
		}
	}
}

// ParseComment extracts the internal job id from an identity comment.
func ParseComment(comment string) (int64, bool) {
	if !strings.HasPrefix(comment, constant.CommentPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(comment, constant.CommentPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
