package errors

import "fmt"

func NewError(code int64, cause string) Error {
	return Error{code, cause}
}

type Error struct {
	Code  int64
	Cause string
}

func (e Error) Error() string {
	return fmt.Sprintf("errid=%d cause=%s", e.Code, e.Cause)
}

// params
var (
	InvalidParameter  = NewError(100, "invalid parameter.")
	JobIdError        = NewError(101, "job_id is empty.")
	BodyReadError     = NewError(102, "http body read failed.")
	BodyDecodeError   = NewError(103, "http body decode failed.")
	BodyMarshalError  = NewError(104, "json marshal failed.")
	VerifyJobError    = NewError(105, "verify job failed.")
	ServerClosedError = NewError(106, "server is closing.")
)

// db
var (
	SqlCreateError    = NewError(150, "db insert failed.")
	SqlUnChangedError = NewError(151, "db data unchanged.")
	SqlUpdateError    = NewError(152, "db update failed.")
	SqlQueryError     = NewError(153, "db query failed.")
	SqlNotFoundError  = NewError(154, "record not found.")
)

// scheduler
var (
	QueryJobFailed      = NewError(200, "query job from scheduler failed.")
	SchedulerJobBase    = NewError(201, "scheduler operation failed.")
	OperationNotSupport = NewError(202, "operation not supported by scheduler.")
	InvalidPriority     = NewError(203, "priority value out of range.")
	HoldJobFailed       = NewError(204, "hold job failed.")
	ReleaseJobFailed    = NewError(205, "release job failed.")
)

// business
var (
	SubmitJobError         = NewError(250, "submit job failed.")
	DeleteRunningJob       = NewError(251, "job is still waiting, delete refused.")
	JobOperationNotSupport = NewError(252, "job operation not supported.")
	InvalidJobPriority     = NewError(253, "invalid job priority.")
	JobFileNotExist        = NewError(254, "job file does not exist.")
	QueryJobDetail         = NewError(255, "query job detail failed.")
	PublishError           = NewError(256, "publish message failed.")
)

// csres
var (
	NoMoreCsres     = NewError(300, "no more cross scheduler resource.")
	AllocatingCsres = NewError(301, "allocating cross scheduler resource failed.")
)

// SubmitError carries the internal job id for diagnosis.
type SubmitError struct {
	JobId  int64
	Reason string
}

func NewSubmitError(jobId int64, reason string) *SubmitError {
	return &SubmitError{JobId: jobId, Reason: reason}
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("errid=%d job_id=%d cause=submit job failed reason=%s", SubmitJobError.Code, e.JobId, e.Reason)
}

// CsresError carries the resource code that failed to allocate.
type CsresError struct {
	Base Error
	Code string
}

func NewCsresError(base Error, code string) *CsresError {
	return &CsresError{Base: base, Code: code}
}

func (e *CsresError) Error() string {
	return fmt.Sprintf("errid=%d code=%s cause=%s", e.Base.Code, e.Code, e.Base.Cause)
}
