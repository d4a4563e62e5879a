package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/licoproject/lico-core/entity"
)

type JobRunningStore interface {
	GetJobRunning(ctx context.Context, jobId int64) ([]*entity.JobRunning, error)
	// DeleteStaleRunning purges allocation rows from a previous run generation.
	DeleteStaleRunning(ctx context.Context, q sqlx.ExtContext, jobId, allocateTime int64) (int64, error)
	UpsertJobRunning(ctx context.Context, q sqlx.ExtContext, row *entity.JobRunning) error
	DeleteJobRunning(ctx context.Context, q sqlx.ExtContext, jobId int64) (int64, error)
}

func NewJobRunningStore() JobRunningStore {
	return &jobRunningStore{}
}

type jobRunningStore struct{}

func (s *jobRunningStore) GetJobRunning(ctx context.Context, jobId int64) ([]*entity.JobRunning, error) {
	var res []*entity.JobRunning
	err := db().SelectContext(ctx, &res, "select * from job_running where job_id = ? order by id asc;", jobId)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobRunningStore) DeleteStaleRunning(ctx context.Context, q sqlx.ExtContext, jobId, allocateTime int64) (int64, error) {
	res, err := q.ExecContext(ctx, "delete from job_running where job_id = ? and allocate_time <> ?", jobId, allocateTime)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *jobRunningStore) UpsertJobRunning(ctx context.Context, q sqlx.ExtContext, row *entity.JobRunning) error {
	_, err := q.ExecContext(ctx, "insert into job_running(job_id, hosts, per_host_tres, allocate_time) values (?, ?, ?, ?) on duplicate key update per_host_tres = values(per_host_tres), allocate_time = values(allocate_time)",
		row.JobId, row.Hosts, row.PerHostTres, row.AllocateTime)
	return err
}

func (s *jobRunningStore) DeleteJobRunning(ctx context.Context, q sqlx.ExtContext, jobId int64) (int64, error) {
	res, err := q.ExecContext(ctx, "delete from job_running where job_id = ?", jobId)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
