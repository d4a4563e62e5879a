package alert

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/log"
	"github.com/licoproject/lico-core/pkg/protocol"
)

// Create records one fired alert. The policy row is re-read under an
// exclusive lock so a policy switched off mid-scan aborts silently, and an
// already-open alert for the same (policy, node, index) suppresses the new
// one. Fan-out runs only after the insert commits.
func Create(ctx context.Context, policyId int64, t Target, notifier Notifier) error {
	var created *entity.Alert
	var policy *entity.Policy
	err := storage.Transaction(ctx, func(tx *sqlx.Tx) error {
		p, err := storage.GetFactory().GetPolicyForUpdate(ctx, tx, policyId)
		if err != nil {
			return err
		}
		if p.Status != entity.PolicyOn {
			return nil
		}
		open, err := storage.GetFactory().GetOpenAlert(ctx, tx, policyId, t.Node, t.Index)
		if err != nil {
			return err
		}
		if open != nil {
			return nil
		}
		a := &entity.Alert{
			PolicyId:   policyId,
			Node:       t.Node,
			Index:      t.Index,
			Status:     entity.AlertPresent,
			Comment:    t.Comment,
			CreateTime: time.Now().Unix(),
		}
		id, err := storage.GetFactory().CreateAlert(ctx, tx, a)
		if err != nil {
			return err
		}
		a.Id = id
		created = a
		policy = p
		return nil
	})
	if err != nil {
		return err
	}
	if created == nil {
		return nil
	}
	log.Logger().Info("alert created policy_id=%d node=%s index=%d", policyId, t.Node, t.Index)
	protocol.AlertCreated.WithLabelValues(policy.Metric.String()).Inc()
	if notifier != nil {
		notifier.Notify(policy, created)
	}
	return nil
}
