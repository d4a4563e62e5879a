package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/licoproject/lico-core/entity"
)

type JobCsresStore interface {
	CreateJobCsres(ctx context.Context, q sqlx.ExtContext, row *entity.JobCsres) (int64, error)
	GetJobCsres(ctx context.Context, jobId int64) ([]*entity.JobCsres, error)
	// GetUsedValues reservations held by jobs still in a waiting state.
	GetUsedValues(ctx context.Context, q sqlx.ExtContext, code string) ([]string, error)
	// CountRunningJobsByCsres running jobs holding at least one reservation for code.
	CountRunningJobsByCsres(ctx context.Context, code string) (int64, error)
	DeleteJobCsres(ctx context.Context, q sqlx.ExtContext, jobId int64) (int64, error)
}

func NewJobCsresStore() JobCsresStore {
	return &jobCsresStore{}
}

type jobCsresStore struct{}

func (s *jobCsresStore) CreateJobCsres(ctx context.Context, q sqlx.ExtContext, row *entity.JobCsres) (int64, error) {
	res, err := q.ExecContext(ctx, "insert into job_csres(job_id, csres_code, csres_value) values (?, ?, ?)",
		row.JobId, row.CsresCode, row.CsresValue)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *jobCsresStore) GetJobCsres(ctx context.Context, jobId int64) ([]*entity.JobCsres, error) {
	var res []*entity.JobCsres
	err := db().SelectContext(ctx, &res, "select * from job_csres where job_id = ? order by id asc;", jobId)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobCsresStore) GetUsedValues(ctx context.Context, q sqlx.ExtContext, code string) ([]string, error) {
	var res []string
	err := sqlx.SelectContext(ctx, q, &res,
		"select jc.csres_value from job_csres jc inner join job j on jc.job_id = j.id where jc.csres_code = ? and j.deleted = 0 and j.state in ("+stateList(waitingStates)+");", code)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *jobCsresStore) CountRunningJobsByCsres(ctx context.Context, code string) (int64, error) {
	var n int64
	err := db().GetContext(ctx, &n,
		"select count(distinct jc.job_id) from job_csres jc inner join job j on jc.job_id = j.id where jc.csres_code = ? and j.deleted = 0 and j.state = ?;",
		code, string(entity.StateRunning))
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *jobCsresStore) DeleteJobCsres(ctx context.Context, q sqlx.ExtContext, jobId int64) (int64, error) {
	res, err := q.ExecContext(ctx, "delete from job_csres where job_id = ?", jobId)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
