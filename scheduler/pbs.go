package scheduler

import (
	"context"
	"fmt"
	"strings"

	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/utils"
)

func NewPbs(user string, cli *clientexec.Client) *Pbs {
	return &Pbs{user: user, cli: cli}
}

// Pbs adapter over qsub/qstat/qdel/qhold/qrls/qsig/qalter. The identity
// comment travels in the job environment since PBS has no user comment field.
type Pbs struct {
	user string
	cli  *clientexec.Client
}

const pbsCommentVar = "LICO_COMMENT"

func (p *Pbs) ScriptSuffix() string {
	return "pbs"
}

// pbsRawState expands the single letter job_state.
var pbsRawState = map[string]string{
	"Q": "PENDING",
	"W": "PENDING",
	"T": "PENDING",
	"R": "RUNNING",
	"B": "RUNNING",
	"E": "COMPLETING",
	"H": "HOLD",
	"S": "SUSPENDED",
	"F": "COMPLETED",
	"X": "COMPLETED",
}

func pbsIdentity(qsubOut string) JobIdentity {
	full := strings.TrimSpace(qsubOut)
	short := full
	if i := strings.IndexByte(full, '.'); i > 0 {
		short = full[:i]
	}
	return JobIdentity{Id: short, IdentityStr: full, AltIdentityStr: short}
}

func (p *Pbs) SubmitJob(ctx context.Context, content, name, comment string) (JobIdentity, error) {
	args := []string{"-v", pbsCommentVar + "=" + comment}
	if name != "" {
		args = append(args, "-N", name)
	}
	out, err := p.cli.RunAsWithInput(ctx, p.user, content, "qsub", args...)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return pbsIdentity(out), nil
}

func (p *Pbs) SubmitJobFromFile(ctx context.Context, jobFile, comment string) (JobIdentity, error) {
	out, err := p.cli.RunAs(ctx, p.user, "qsub", "-v", pbsCommentVar+"="+comment, jobFile)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return pbsIdentity(out), nil
}

func (p *Pbs) QueryJob(ctx context.Context, id JobIdentity) (*Job, error) {
	out, err := p.cli.RunAs(ctx, p.user, "qstat", "-f", id.IdentityStr)
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseQstatJobs(out)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s cause=job %s not found", errors.QueryJobFailed.Cause, id.IdentityStr)
	}
	return jobs[0], nil
}

func (p *Pbs) QueryRecentJobs(ctx context.Context, includeMemory bool) ([]*Job, error) {
	// -x folds in recently finished jobs kept by the server history
	out, err := p.cli.RunAs(ctx, p.user, "qstat", "-f", "-x")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	return parseQstatJobs(out), nil
}

func (p *Pbs) QueryJobRawInfo(ctx context.Context, id JobIdentity) (string, error) {
	out, err := p.cli.RunAs(ctx, p.user, "qstat", "-f", id.IdentityStr)
	if err != nil {
		return "", fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	return out, nil
}

func (p *Pbs) CancelJob(ctx context.Context, id JobIdentity) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qdel", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) RecycleResources(ctx context.Context, id JobIdentity) error {
	_, err := p.cli.RunAs(ctx, p.user, "qdel", "-W", "force", id.IdentityStr)
	if err != nil && !pbsAlreadyReleased(err) {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func pbsAlreadyReleased(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Unknown Job Id") ||
		strings.Contains(msg, "Job has finished") ||
		strings.Contains(msg, "invalid state for job")
}

func (p *Pbs) HoldJob(ctx context.Context, id JobIdentity) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qhold", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.HoldJobFailed.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) ReleaseJob(ctx context.Context, id JobIdentity) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qrls", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.ReleaseJobFailed.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) RequeueJob(ctx context.Context, id JobIdentity) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qrerun", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) SuspendJob(ctx context.Context, id JobIdentity) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qsig", "-s", "suspend", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) ResumeJob(ctx context.Context, id JobIdentity) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qsig", "-s", "resume", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

const (
	pbsPriorityMin int64 = -1024
	pbsPriorityMax int64 = 1023
)

func (p *Pbs) UpdateJobPriority(ctx context.Context, id JobIdentity, value string) error {
	n, err := utils.ParseInt64(value)
	if err != nil || n < pbsPriorityMin || n > pbsPriorityMax {
		return fmt.Errorf("%s value=%s", errors.InvalidPriority.Cause, value)
	}
	if _, err := p.cli.RunAs(ctx, p.user, "qalter", "-p", fmt.Sprintf("%d", n), id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) GetPriorityValue(ctx context.Context) (int64, int64, error) {
	return pbsPriorityMin, pbsPriorityMax, nil
}

func (p *Pbs) QueryAvailableQueues(ctx context.Context) ([]*Queue, error) {
	out, err := p.cli.RunAs(ctx, p.user, "qstat", "-Q", "-f")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	var queues []*Queue
	for _, block := range strings.Split(out, "Queue: ") {
		lines := strings.Split(block, "\n")
		if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
			continue
		}
		kv := parseQstatBlock(lines[1:])
		q := &Queue{Name: strings.TrimSpace(lines[0])}
		if kv["enabled"] == "True" {
			q.State = "UP"
		} else {
			q.State = "DOWN"
		}
		queues = append(queues, q)
	}
	return queues, nil
}

func (p *Pbs) GetStatus(ctx context.Context) error {
	if _, err := p.cli.RunAs(ctx, p.user, "qstat", "-B"); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (p *Pbs) GetRuntime(ctx context.Context, id JobIdentity) (int64, error) {
	job, err := p.QueryJob(ctx, id)
	if err != nil {
		return 0, err
	}
	return job.Runtime, nil
}

func (p *Pbs) GetLicenseFeature(ctx context.Context) (map[string]int64, error) {
	return nil, fmt.Errorf("%s operation=get_license_feature", errors.OperationNotSupport.Cause)
}

func (p *Pbs) GetGresType(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("%s operation=get_gres_type", errors.OperationNotSupport.Cause)
}

func (p *Pbs) GetSchedulerResource(ctx context.Context) (map[string]string, error) {
	out, err := p.cli.RunAs(ctx, p.user, "qstat", "-B", "-f")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return parseQstatBlock(strings.Split(out, "\n")), nil
}

func (p *Pbs) GetHistoryJob(ctx context.Context, id JobIdentity) (*Job, error) {
	out, err := p.cli.RunAs(ctx, p.user, "qstat", "-f", "-x", id.IdentityStr)
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseQstatJobs(out)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s cause=job %s not found", errors.QueryJobFailed.Cause, id.IdentityStr)
	}
	return jobs[0], nil
}

// parseQstatJobs parses `qstat -f` blocks "Job Id: 123.server\n    attr = value".
func parseQstatJobs(out string) []*Job {
	var jobs []*Job
	for _, block := range strings.Split(out, "Job Id: ") {
		lines := strings.Split(block, "\n")
		if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
			continue
		}
		full := strings.TrimSpace(lines[0])
		kv := parseQstatBlock(lines[1:])
		jobs = append(jobs, qstatJob(full, kv))
	}
	return jobs
}

// parseQstatBlock handles "    attr = value" with backslash/whitespace continuations.
func parseQstatBlock(lines []string) map[string]string {
	kv := map[string]string{}
	var last string
	for _, line := range lines {
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    \t") {
			if last != "" {
				kv[last] += strings.TrimSpace(line)
			}
			continue
		}
		i := strings.Index(line, " = ")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		kv[key] = strings.TrimSpace(line[i+3:])
		last = key
	}
	return kv
}

func qstatJob(fullId string, kv map[string]string) *Job {
	short := fullId
	if i := strings.IndexByte(fullId, '.'); i > 0 {
		short = fullId[:i]
	}
	raw := pbsRawState[kv["job_state"]]
	if raw == "" {
		raw = kv["job_state"]
	}
	job := &Job{
		Identity:   JobIdentity{Id: short, IdentityStr: fullId, AltIdentityStr: short},
		Name:       kv["Job_Name"],
		Submitter:  stripPbsHost(kv["Job_Owner"]),
		Queue:      kv["queue"],
		Comment:    pbsComment(kv["Variable_List"]),
		RawState:   raw,
		StdoutFile: stripPbsHost(kv["Output_Path"]),
		StderrFile: stripPbsHost(kv["Error_Path"]),
		ExitCode:   kv["Exit_status"],
		Priority:   kv["Priority"],
		Reason:     kv["comment"],
	}
	job.State = MapState(job.RawState)
	job.SubmitTime = parsePbsTime(kv["qtime"])
	job.StartTime = parsePbsTime(kv["stime"])
	job.EndTime = parsePbsTime(kv["obittime"])
	if job.EndTime == 0 {
		job.EndTime = parsePbsTime(kv["mtime"])
		if !job.State.Final() {
			job.EndTime = 0
		}
	}
	job.Runtime = parsePbsDuration(kv["resources_used.walltime"])
	job.Tres = convertPbsTres(kv)
	for _, host := range pbsExecHosts(kv["exec_host"]) {
		job.Running = append(job.Running, RunningHost{Host: host, Tres: perHostTres(job.Tres)})
	}
	if mem := parseSlurmSize(strings.TrimSuffix(kv["resources_used.mem"], "b")); mem > 0 {
		job.MemoryUsed = mem
	}
	return job
}

func pbsComment(variableList string) string {
	for _, item := range strings.Split(variableList, ",") {
		if strings.HasPrefix(item, pbsCommentVar+"=") {
			return item[len(pbsCommentVar)+1:]
		}
	}
	return ""
}

func stripPbsHost(s string) string {
	// user@host or host:/path
	if i := strings.IndexByte(s, '@'); i > 0 {
		return s[:i]
	}
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[i+1:]
	}
	return s
}

// parsePbsTime "Mon Jan  2 15:04:05 2006"
func parsePbsTime(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	t, err := parseLocalTime("Mon Jan _2 15:04:05 2006", s)
	if err != nil {
		return 0
	}
	return t
}

func parsePbsDuration(s string) int64 {
	return parseSlurmElapsed(s)
}

func convertPbsTres(kv map[string]string) string {
	var parts []string
	if v := kv["Resource_List.nodect"]; v != "" {
		parts = append(parts, "N:"+v)
	}
	if v := kv["Resource_List.ncpus"]; v != "" {
		parts = append(parts, "C:"+v)
	}
	if v := kv["Resource_List.mem"]; v != "" {
		parts = append(parts, "M:"+v)
	}
	if v := kv["Resource_List.ngpus"]; v != "" {
		parts = append(parts, "G/gpu:"+v)
	}
	return strings.Join(parts, ",")
}

// pbsExecHosts "nodeA/0*8+nodeB/0*8"
func pbsExecHosts(s string) []string {
	if s == "" {
		return nil
	}
	seen := map[string]bool{}
	var hosts []string
	for _, chunk := range strings.Split(s, "+") {
		host := chunk
		if i := strings.IndexByte(chunk, '/'); i > 0 {
			host = chunk[:i]
		}
		if host != "" && !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	return hosts
}
