package entity

// SubmitRequest carries either a ready job file or raw content plus the
// workspace to render it into.
type SubmitRequest struct {
	JobName    string `json:"job_name"`
	Submitter  string `json:"submitter"`
	JobFile    string `json:"job_file"`
	Workspace  string `json:"workspace"`
	JobContent string `json:"job_content"`
}

// BulkRequest job ids for the bulk operations, with an optional value
// (priority updates).
type BulkRequest struct {
	JobIds []int64 `json:"job_ids"`
	Value  string  `json:"value"`
}

// BulkResult one job in a bulk operation outcome.
type BulkResult struct {
	JobId int64  `json:"job_id"`
	Ok    bool   `json:"ok"`
	Cause string `json:"cause,omitempty"`
}

// AlertActionRequest alert ids for confirm / resolve / delete.
type AlertActionRequest struct {
	AlertIds []int64 `json:"alert_ids"`
}
