package server

import (
	"context"
	"time"

	"github.com/licoproject/lico-core/config"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/constant"
	"github.com/licoproject/lico-core/pkg/utils"
)

// Summarizer publishes periodic rollups of the job table to the event bus
// for downstream dashboards.
type Summarizer struct {
	events Publisher
	topic  string
	now    func() time.Time
}

func NewSummarizer(cfg *config.Config, events Publisher) *Summarizer {
	return &Summarizer{events: events, topic: cfg.SummaryTopic, now: time.Now}
}

// Cluster rollup: totals and per-state counts.
func (s *Summarizer) Cluster(ctx context.Context) {
	total, err := storage.GetFactory().CountJobs(ctx)
	if err != nil {
		log.Logger().Error("Summarizer.Cluster CountJobs failed cause=%s", err.Error())
		return
	}
	states, err := storage.GetFactory().CountJobsByState(ctx)
	if err != nil {
		log.Logger().Error("Summarizer.Cluster CountJobsByState failed cause=%s", err.Error())
		return
	}
	s.publish(constant.SummaryCluster, map[string]interface{}{
		"total":  total,
		"states": states,
	})
}

// Group rollup: waiting jobs per queue.
func (s *Summarizer) Group(ctx context.Context) {
	queues, err := storage.GetFactory().CountJobsByQueue(ctx)
	if err != nil {
		log.Logger().Error("Summarizer.Group CountJobsByQueue failed cause=%s", err.Error())
		return
	}
	s.publish(constant.SummaryGroup, map[string]interface{}{"queues": queues})
}

// Latest rollup: the most recent job rows.
func (s *Summarizer) Latest(ctx context.Context) {
	jobs, err := storage.GetFactory().PageJobs(ctx, 0, 20)
	if err != nil {
		log.Logger().Error("Summarizer.Latest PageJobs failed cause=%s", err.Error())
		return
	}
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.Id)
	}
	s.publish(constant.SummaryLatest, map[string]interface{}{"job_ids": ids})
}

// Vnc rollup: running interactive sessions, counted as running jobs that
// hold a rendered port reservation.
func (s *Summarizer) Vnc(ctx context.Context) {
	sessions, err := storage.GetFactory().CountRunningJobsByCsres(ctx, string(constant.CsresPort))
	if err != nil {
		log.Logger().Error("Summarizer.Vnc CountRunningJobsByCsres failed cause=%s", err.Error())
		return
	}
	s.publish(constant.SummaryVnc, map[string]interface{}{"sessions": sessions})
}

func (s *Summarizer) publish(scope string, payload map[string]interface{}) {
	msg := &entity.SummaryMessage{
		MessageId: utils.UUID(),
		Scope:     scope,
		Payload:   payload,
		Timestamp: s.now().Unix(),
	}
	if err := s.events.Publish(s.topic, msg); err != nil {
		log.Logger().Error("Summarizer.publish scope=%s failed cause=%s", scope, err.Error())
	}
}
