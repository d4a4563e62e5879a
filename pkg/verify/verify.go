// Package verify validates inbound api payloads before they reach storage.
package verify

import (
	"fmt"

	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/pkg/constant"
)

func VerifySubmit(jobName, submitter, jobFile, workspace, content string) error {
	if jobName == "" {
		return fmt.Errorf("job_name is required")
	}
	if len(jobName) > constant.MaxJobNameLen {
		return fmt.Errorf("job_name exceeds %d chars", constant.MaxJobNameLen)
	}
	if submitter == "" {
		return fmt.Errorf("submitter is required")
	}
	if jobFile == "" && (workspace == "" || content == "") {
		return fmt.Errorf("either job_file or workspace with job_content is required")
	}
	if jobFile != "" && content != "" {
		return fmt.Errorf("job_file and job_content are mutually exclusive")
	}
	return nil
}

func VerifyPolicy(p *entity.Policy) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	valid := false
	for _, m := range entity.MetricKinds {
		if p.Metric == m {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown metric %s", p.Metric)
	}
	switch p.PortalOp {
	case entity.OpLt, entity.OpLte, entity.OpGt, entity.OpGte:
	default:
		return fmt.Errorf("unknown portal op %s", p.PortalOp)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	switch p.Status {
	case "", entity.PolicyOn, entity.PolicyOff:
	default:
		return fmt.Errorf("unknown status %s", p.Status)
	}
	return nil
}

func VerifyJobIds(ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("job_ids is empty")
	}
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("invalid job id %d", id)
		}
	}
	return nil
}
