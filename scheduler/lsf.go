package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/utils"
)

func NewLsf(user string, cli *clientexec.Client) *Lsf {
	return &Lsf{user: user, cli: cli, memoryRetry: 5 * time.Second}
}

// Lsf adapter over bsub/bjobs/bkill/bstop/bresume/brequeue/bmod. The identity
// comment travels in the job description (-Jd).
type Lsf struct {
	user        string
	cli         *clientexec.Client
	memoryRetry time.Duration
}

func (l *Lsf) ScriptSuffix() string {
	return "lsf"
}

// SetMemoryRetry interval between bjobs memory re-probes.
func (l *Lsf) SetMemoryRetry(d time.Duration) *Lsf {
	l.memoryRetry = d
	return l
}

var lsfRawState = map[string]string{
	"PEND":  "PENDING",
	"PROV":  "PENDING",
	"WAIT":  "PENDING",
	"RUN":   "RUNNING",
	"PSUSP": "HOLD",
	"USUSP": "SUSPENDED",
	"SSUSP": "SUSPENDED",
	"DONE":  "COMPLETED",
	"EXIT":  "FAILED",
	"ZOMBI": "FAILED",
	"UNKWN": "UNKNOWN",
}

func lsfIdentity(bsubOut string) (JobIdentity, error) {
	// "Job <123> is submitted to queue <normal>."
	open := strings.IndexByte(bsubOut, '<')
	close_ := strings.IndexByte(bsubOut, '>')
	if open < 0 || close_ < open {
		return JobIdentity{}, fmt.Errorf("unexpected bsub output %q", strings.TrimSpace(bsubOut))
	}
	id := bsubOut[open+1 : close_]
	return JobIdentity{Id: id, IdentityStr: id, AltIdentityStr: id}, nil
}

func (l *Lsf) SubmitJob(ctx context.Context, content, name, comment string) (JobIdentity, error) {
	args := []string{"-Jd", comment}
	if name != "" {
		args = append(args, "-J", name)
	}
	out, err := l.cli.RunAsWithInput(ctx, l.user, content, "bsub", args...)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	id, err := lsfIdentity(out)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return id, nil
}

func (l *Lsf) SubmitJobFromFile(ctx context.Context, jobFile, comment string) (JobIdentity, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bsub", "-Jd", comment, jobFile)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	id, err := lsfIdentity(out)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return id, nil
}

// lsfFields bjobs -o column list; delimiter chosen to survive job names.
var lsfFields = "jobid name user queue stat submit_time start_time finish_time run_time job_description exec_host output_file error_file exit_code user_priority nalloc_slot memlimit delimiter='|'"

func (l *Lsf) QueryJob(ctx context.Context, id JobIdentity) (*Job, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bjobs", "-a", "-noheader", "-o", lsfFields, id.IdentityStr)
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseBjobs(out)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s cause=job %s not found", errors.QueryJobFailed.Cause, id.IdentityStr)
	}
	return jobs[0], nil
}

func (l *Lsf) QueryRecentJobs(ctx context.Context, includeMemory bool) ([]*Job, error) {
	// -a folds in jobs finished within CLEAN_PERIOD
	out, err := l.cli.RunAs(ctx, l.user, "bjobs", "-u", "all", "-a", "-noheader", "-o", lsfFields)
	if err != nil {
		if strings.Contains(err.Error(), "No job found") {
			return nil, nil
		}
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseBjobs(out)
	if includeMemory {
		l.probeMemory(ctx, jobs)
	}
	return jobs, nil
}

// probeMemory bjobs -o mem, retried once after memoryRetry since LSF publishes
// memory lazily for young jobs.
func (l *Lsf) probeMemory(ctx context.Context, jobs []*Job) {
	for _, job := range jobs {
		if job.State != entity.StateRunning {
			continue
		}
		mem, err := l.queryMemory(ctx, job.Identity)
		if err != nil || mem == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.memoryRetry):
			}
			mem, _ = l.queryMemory(ctx, job.Identity)
		}
		job.MemoryUsed = mem
	}
}

func (l *Lsf) queryMemory(ctx context.Context, id JobIdentity) (int64, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bjobs", "-noheader", "-o", "mem delimiter='|'", id.IdentityStr)
	if err != nil {
		return 0, err
	}
	return parseLsfMemory(out), nil
}

func (l *Lsf) QueryJobRawInfo(ctx context.Context, id JobIdentity) (string, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bjobs", "-l", id.IdentityStr)
	if err != nil {
		return "", fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	return out, nil
}

func (l *Lsf) CancelJob(ctx context.Context, id JobIdentity) error {
	if _, err := l.cli.RunAs(ctx, l.user, "bkill", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (l *Lsf) RecycleResources(ctx context.Context, id JobIdentity) error {
	_, err := l.cli.RunAs(ctx, l.user, "bkill", id.IdentityStr)
	if err != nil && !lsfAlreadyReleased(err) {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func lsfAlreadyReleased(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Job has already finished") ||
		strings.Contains(msg, "No matching job found")
}

func (l *Lsf) HoldJob(ctx context.Context, id JobIdentity) error {
	if _, err := l.cli.RunAs(ctx, l.user, "bstop", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.HoldJobFailed.Cause, err.Error())
	}
	return nil
}

func (l *Lsf) ReleaseJob(ctx context.Context, id JobIdentity) error {
	if _, err := l.cli.RunAs(ctx, l.user, "bresume", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.ReleaseJobFailed.Cause, err.Error())
	}
	return nil
}

func (l *Lsf) RequeueJob(ctx context.Context, id JobIdentity) error {
	if _, err := l.cli.RunAs(ctx, l.user, "brequeue", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (l *Lsf) SuspendJob(ctx context.Context, id JobIdentity) error {
	return l.HoldJob(ctx, id)
}

func (l *Lsf) ResumeJob(ctx context.Context, id JobIdentity) error {
	return l.ReleaseJob(ctx, id)
}

const (
	lsfPriorityMin int64 = 1
	lsfPriorityMax int64 = 32766
)

func (l *Lsf) UpdateJobPriority(ctx context.Context, id JobIdentity, value string) error {
	n, err := utils.ParseInt64(value)
	if err != nil || n < lsfPriorityMin || n > lsfPriorityMax {
		return fmt.Errorf("%s value=%s", errors.InvalidPriority.Cause, value)
	}
	if _, err := l.cli.RunAs(ctx, l.user, "bmod", "-sp", fmt.Sprintf("%d", n), id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (l *Lsf) GetPriorityValue(ctx context.Context) (int64, int64, error) {
	return lsfPriorityMin, lsfPriorityMax, nil
}

func (l *Lsf) QueryAvailableQueues(ctx context.Context) ([]*Queue, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bqueues", "-o", "queue_name status delimiter='|'", "-noheader")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	var queues []*Queue
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "|")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		queues = append(queues, &Queue{Name: fields[0], State: fields[1]})
	}
	return queues, nil
}

func (l *Lsf) GetStatus(ctx context.Context) error {
	if _, err := l.cli.RunAs(ctx, l.user, "lsid"); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (l *Lsf) GetRuntime(ctx context.Context, id JobIdentity) (int64, error) {
	job, err := l.QueryJob(ctx, id)
	if err != nil {
		return 0, err
	}
	return job.Runtime, nil
}

func (l *Lsf) GetLicenseFeature(ctx context.Context) (map[string]int64, error) {
	return nil, fmt.Errorf("%s operation=get_license_feature", errors.OperationNotSupport.Cause)
}

func (l *Lsf) GetGresType(ctx context.Context) ([]string, error) {
	return nil, fmt.Errorf("%s operation=get_gres_type", errors.OperationNotSupport.Cause)
}

func (l *Lsf) GetSchedulerResource(ctx context.Context) (map[string]string, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bhosts", "-o", "host_name status max njobs delimiter='|'", "-noheader")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	res := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "|")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		res[fields[0]] = strings.Join(fields[1:], " ")
	}
	return res, nil
}

func (l *Lsf) GetHistoryJob(ctx context.Context, id JobIdentity) (*Job, error) {
	out, err := l.cli.RunAs(ctx, l.user, "bjobs", "-a", "-noheader", "-o", lsfFields, id.IdentityStr)
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseBjobs(out)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s cause=job %s not found", errors.QueryJobFailed.Cause, id.IdentityStr)
	}
	return jobs[0], nil
}

func parseBjobs(out string) []*Job {
	var jobs []*Job
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 17 {
			continue
		}
		jobs = append(jobs, bjobsJob(fields))
	}
	return jobs
}

func bjobsJob(fields []string) *Job {
	raw := lsfRawState[fields[4]]
	if raw == "" {
		raw = fields[4]
	}
	job := &Job{
		Identity:   JobIdentity{Id: fields[0], IdentityStr: fields[0], AltIdentityStr: fields[0]},
		Name:       lsfValue(fields[1]),
		Submitter:  lsfValue(fields[2]),
		Queue:      lsfValue(fields[3]),
		RawState:   raw,
		Comment:    lsfValue(fields[9]),
		StdoutFile: lsfValue(fields[11]),
		StderrFile: lsfValue(fields[12]),
		ExitCode:   lsfValue(fields[13]),
		Priority:   lsfValue(fields[14]),
	}
	job.State = MapState(job.RawState)
	job.SubmitTime = parseLsfTime(fields[5])
	job.StartTime = parseLsfTime(fields[6])
	job.EndTime = parseLsfTime(fields[7])
	job.Runtime = parseLsfRuntime(fields[8])
	slots, _ := utils.ParseInt64(lsfValue(fields[15]))
	hosts := lsfExecHosts(fields[10])
	if len(hosts) > 0 {
		job.Tres = fmt.Sprintf("N:%d,C:%d", len(hosts), slots)
		if mem := lsfValue(fields[16]); mem != "" {
			job.Tres += ",M:" + strings.ReplaceAll(mem, " ", "")
		}
	}
	for _, host := range hosts {
		job.Running = append(job.Running, RunningHost{Host: host, Tres: perHostTres(job.Tres)})
	}
	return job
}

func lsfValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "-" {
		return ""
	}
	return s
}

// parseLsfTime "Jan  2 15:04" or "Jan  2 15:04:05 2006" depending on LSF_DATE_FORMAT
func parseLsfTime(s string) int64 {
	s = strings.TrimSuffix(strings.TrimSpace(lsfValue(s)), " L")
	s = strings.TrimSuffix(s, " E")
	if s == "" {
		return 0
	}
	for _, layout := range []string{"Jan _2 15:04:05 2006", "Jan _2 15:04 2006", "Jan _2 15:04"} {
		if t, err := parseLocalTime(layout, s); err == nil {
			if !strings.Contains(layout, "2006") {
				// bjobs omits the year for the current one
				now := time.Now()
				t2, _ := parseLocalTime("Jan _2 15:04 2006", fmt.Sprintf("%s %d", s, now.Year()))
				return t2
			}
			return t
		}
	}
	return 0
}

// parseLsfRuntime "123 second(s)"
func parseLsfRuntime(s string) int64 {
	s = lsfValue(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	n, err := utils.ParseInt64(s)
	if err != nil {
		return -1
	}
	return n
}

// parseLsfMemory "12 Mbytes"
func parseLsfMemory(s string) int64 {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0
	}
	n, err := utils.ParseInt64(fields[0])
	if err != nil {
		return 0
	}
	if len(fields) > 1 {
		switch strings.ToLower(fields[1][:1]) {
		case "g":
			n *= 1024 * 1024
		case "m":
			n *= 1024
		}
	}
	return n
}

// lsfExecHosts "8*nodeA:8*nodeB" or "nodeA"
func lsfExecHosts(s string) []string {
	s = lsfValue(s)
	if s == "" {
		return nil
	}
	seen := map[string]bool{}
	var hosts []string
	for _, chunk := range strings.Split(s, ":") {
		host := chunk
		if i := strings.IndexByte(chunk, '*'); i >= 0 {
			host = chunk[i+1:]
		}
		if host != "" && !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	return hosts
}
