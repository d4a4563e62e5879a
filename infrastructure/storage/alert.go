package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/licoproject/lico-core/entity"
)

type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *entity.Policy) (int64, error)
	UpdatePolicy(ctx context.Context, p *entity.Policy) (int64, error)
	DeletePolicy(ctx context.Context, policyId int64) (int64, error)
	GetPolicy(ctx context.Context, policyId int64) (*entity.Policy, error)
	GetPolicyForUpdate(ctx context.Context, tx *sqlx.Tx, policyId int64) (*entity.Policy, error)
	GetActivePolicies(ctx context.Context, metric entity.MetricKind) ([]*entity.Policy, error)
	ListPolicies(ctx context.Context) ([]*entity.Policy, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, q sqlx.ExtContext, a *entity.Alert) (int64, error)
	// GetOpenAlert the non-resolved alert for (policy, node, index), nil when absent.
	GetOpenAlert(ctx context.Context, q sqlx.ExtContext, policyId int64, node string, index int64) (*entity.Alert, error)
	UpdateAlertStatus(ctx context.Context, alertIds []int64, status entity.AlertStatus) (int64, error)
	DeleteAlerts(ctx context.Context, alertIds []int64) (int64, error)
	ListAlerts(ctx context.Context, policyId int64, status entity.AlertStatus, offset, limit int) ([]*entity.Alert, error)
}

func NewPolicyStore() PolicyStore {
	return &policyStore{}
}

type policyStore struct{}

func (s *policyStore) CreatePolicy(ctx context.Context, p *entity.Policy) (int64, error) {
	res, err := db().ExecContext(ctx, "insert into alert_policy(name, metric, portal_op, threshold, duration, node_filter, level, status, targets, script, language, create_time, update_time) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.Name, p.Metric, p.PortalOp, p.Threshold, p.Duration, p.NodeFilter, p.Level,
		p.Status, p.Targets, p.Script, p.Language, p.CreateTime, p.UpdateTime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *policyStore) UpdatePolicy(ctx context.Context, p *entity.Policy) (int64, error) {
	res, err := db().ExecContext(ctx, "update alert_policy set name = ?, metric = ?, portal_op = ?, threshold = ?, duration = ?, node_filter = ?, level = ?, status = ?, targets = ?, script = ?, language = ?, update_time = ? where id = ?",
		p.Name, p.Metric, p.PortalOp, p.Threshold, p.Duration, p.NodeFilter, p.Level,
		p.Status, p.Targets, p.Script, p.Language, p.UpdateTime, p.Id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *policyStore) DeletePolicy(ctx context.Context, policyId int64) (int64, error) {
	res, err := db().ExecContext(ctx, "delete from alert_policy where id = ?", policyId)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *policyStore) GetPolicy(ctx context.Context, policyId int64) (*entity.Policy, error) {
	res := &entity.Policy{}
	if err := db().GetContext(ctx, res, "select * from alert_policy where id = ?;", policyId); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *policyStore) GetPolicyForUpdate(ctx context.Context, tx *sqlx.Tx, policyId int64) (*entity.Policy, error) {
	res := &entity.Policy{}
	if err := tx.GetContext(ctx, res, "select * from alert_policy where id = ? for update;", policyId); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *policyStore) GetActivePolicies(ctx context.Context, metric entity.MetricKind) ([]*entity.Policy, error) {
	var res []*entity.Policy
	err := db().SelectContext(ctx, &res, "select * from alert_policy where status = ? and metric = ?;", entity.PolicyOn, metric)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *policyStore) ListPolicies(ctx context.Context) ([]*entity.Policy, error) {
	var res []*entity.Policy
	err := db().SelectContext(ctx, &res, "select * from alert_policy order by id asc;")
	if err != nil {
		return nil, err
	}
	return res, nil
}

func NewAlertStore() AlertStore {
	return &alertStore{}
}

type alertStore struct{}

func (s *alertStore) CreateAlert(ctx context.Context, q sqlx.ExtContext, a *entity.Alert) (int64, error) {
	res, err := q.ExecContext(ctx, "insert into alert(policy_id, node, index_id, status, comment, create_time) values (?, ?, ?, ?, ?, ?)",
		a.PolicyId, a.Node, a.Index, a.Status, a.Comment, a.CreateTime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *alertStore) GetOpenAlert(ctx context.Context, q sqlx.ExtContext, policyId int64, node string, index int64) (*entity.Alert, error) {
	res := &entity.Alert{}
	err := sqlx.GetContext(ctx, q, res, "select * from alert where policy_id = ? and node = ? and index_id = ? and status <> ? limit 1;",
		policyId, node, index, entity.AlertResolved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *alertStore) UpdateAlertStatus(ctx context.Context, alertIds []int64, status entity.AlertStatus) (int64, error) {
	if len(alertIds) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("update alert set status = ? where id in (?);", status, alertIds)
	if err != nil {
		return 0, err
	}
	res, err := db().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *alertStore) DeleteAlerts(ctx context.Context, alertIds []int64) (int64, error) {
	if len(alertIds) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("delete from alert where id in (?);", alertIds)
	if err != nil {
		return 0, err
	}
	res, err := db().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *alertStore) ListAlerts(ctx context.Context, policyId int64, status entity.AlertStatus, offset, limit int) ([]*entity.Alert, error) {
	query := "select * from alert where 1 = 1"
	var args []interface{}
	if policyId > 0 {
		query += " and policy_id = ?"
		args = append(args, policyId)
	}
	if status != "" {
		query += " and status = ?"
		args = append(args, status)
	}
	query += " order by id desc limit ?, ?;"
	args = append(args, offset, limit)
	var res []*entity.Alert
	if err := db().SelectContext(ctx, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}
