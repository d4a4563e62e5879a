package api

import (
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/protocol"
	"github.com/licoproject/lico-core/pkg/verify"
)

func decodePolicy(w http.ResponseWriter, r *http.Request) (*entity.Policy, bool) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		protocol.FailedJson(w, errors.BodyReadError, err.Error())
		return nil, false
	}
	p := &entity.Policy{}
	if err := json.Unmarshal(body, p); err != nil {
		protocol.FailedJson(w, errors.BodyDecodeError, err.Error())
		return nil, false
	}
	if err := verify.VerifyPolicy(p); err != nil {
		protocol.FailedJson(w, errors.InvalidParameter, err.Error())
		return nil, false
	}
	return p, true
}

func CreatePolicy(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	policy, ok := decodePolicy(w, r)
	if !ok {
		return
	}
	now := time.Now().Unix()
	policy.CreateTime = now
	policy.UpdateTime = now
	if policy.Status == "" {
		policy.Status = entity.PolicyOn
	}
	id, err := storage.GetFactory().CreatePolicy(ctx, policy)
	if err != nil {
		protocol.FailedJson(w, errors.SqlCreateError, err.Error())
		return
	}
	policy.Id = id
	protocol.SuccessJson(w, policy)
}

func UpdatePolicy(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	policy, ok := decodePolicy(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(p.ByName("policy_id"), 10, 64)
	if err != nil {
		protocol.FailedJson(w, errors.InvalidParameter, err.Error())
		return
	}
	policy.Id = id
	policy.UpdateTime = time.Now().Unix()
	if _, err := storage.GetFactory().UpdatePolicy(ctx, policy); err != nil {
		protocol.FailedJson(w, errors.SqlUpdateError, err.Error())
		return
	}
	protocol.SuccessJson(w, policy)
}

func DeletePolicy(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	id, err := strconv.ParseInt(p.ByName("policy_id"), 10, 64)
	if err != nil {
		protocol.FailedJson(w, errors.InvalidParameter, err.Error())
		return
	}
	if _, err := storage.GetFactory().DeletePolicy(ctx, id); err != nil {
		protocol.FailedJson(w, errors.SqlUpdateError, err.Error())
		return
	}
	protocol.SuccessMsg(w, "deleted")
}

func ListPolicies(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	policies, err := storage.GetFactory().ListPolicies(ctx)
	if err != nil {
		protocol.FailedJson(w, errors.SqlQueryError, err.Error())
		return
	}
	protocol.SuccessJson(w, policies)
}

func decodeAlertAction(w http.ResponseWriter, r *http.Request) (*entity.AlertActionRequest, bool) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		protocol.FailedJson(w, errors.BodyReadError, err.Error())
		return nil, false
	}
	req := &entity.AlertActionRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		protocol.FailedJson(w, errors.BodyDecodeError, err.Error())
		return nil, false
	}
	if len(req.AlertIds) == 0 {
		protocol.FailedJson(w, errors.InvalidParameter, "alert_ids is empty")
		return nil, false
	}
	return req, true
}

func ConfirmAlerts(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := decodeAlertAction(w, r)
	if !ok {
		return
	}
	n, err := storage.GetFactory().UpdateAlertStatus(GetCtx(), req.AlertIds, entity.AlertConfirmed)
	if err != nil {
		protocol.FailedJson(w, errors.SqlUpdateError, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"updated": n})
}

func ResolveAlerts(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := decodeAlertAction(w, r)
	if !ok {
		return
	}
	n, err := storage.GetFactory().UpdateAlertStatus(GetCtx(), req.AlertIds, entity.AlertResolved)
	if err != nil {
		protocol.FailedJson(w, errors.SqlUpdateError, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"updated": n})
}

func DeleteAlerts(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	req, ok := decodeAlertAction(w, r)
	if !ok {
		return
	}
	n, err := storage.GetFactory().DeleteAlerts(GetCtx(), req.AlertIds)
	if err != nil {
		protocol.FailedJson(w, errors.SqlUpdateError, err.Error())
		return
	}
	protocol.SuccessJson(w, map[string]interface{}{"deleted": n})
}

func ListAlerts(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ctx := GetCtx()
	q := r.URL.Query()
	var policyId int64
	if v := q.Get("policy_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			protocol.FailedJson(w, errors.InvalidParameter, err.Error())
			return
		}
		policyId = id
	}
	status := entity.AlertStatus(q.Get("status"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}
	alerts, err := storage.GetFactory().ListAlerts(ctx, policyId, status, offset, limit)
	if err != nil {
		protocol.FailedJson(w, errors.SqlQueryError, err.Error())
		return
	}
	protocol.SuccessJson(w, alerts)
}
