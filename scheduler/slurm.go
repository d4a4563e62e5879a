package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	clientexec "github.com/licoproject/lico-core/client/exec"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/pkg/errors"
	"github.com/licoproject/lico-core/pkg/utils"
)

func NewSlurm(user string, cli *clientexec.Client) *Slurm {
	return &Slurm{user: user, cli: cli}
}

// Slurm adapter over sbatch/scontrol/scancel/sacct/sstat.
type Slurm struct {
	user string
	cli  *clientexec.Client
}

func (s *Slurm) ScriptSuffix() string {
	return "slurm"
}

func (s *Slurm) SubmitJob(ctx context.Context, content, name, comment string) (JobIdentity, error) {
	args := []string{"--parsable", "--comment=" + comment}
	if name != "" {
		args = append(args, "--job-name="+name)
	}
	out, err := s.cli.RunAsWithInput(ctx, s.user, content, "sbatch", args...)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return slurmIdentity(out), nil
}

func (s *Slurm) SubmitJobFromFile(ctx context.Context, jobFile, comment string) (JobIdentity, error) {
	out, err := s.cli.RunAs(ctx, s.user, "sbatch", "--parsable", "--comment="+comment, jobFile)
	if err != nil {
		return JobIdentity{}, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return slurmIdentity(out), nil
}

func slurmIdentity(sbatchOut string) JobIdentity {
	// --parsable prints "jobid[;cluster]"
	id := strings.TrimSpace(sbatchOut)
	if i := strings.IndexByte(id, ';'); i > 0 {
		id = id[:i]
	}
	return JobIdentity{Id: id, IdentityStr: id, AltIdentityStr: id}
}

func (s *Slurm) QueryJob(ctx context.Context, id JobIdentity) (*Job, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "job", "-o", id.IdentityStr)
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseScontrolJobs(out)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s cause=job %s not found", errors.QueryJobFailed.Cause, id.IdentityStr)
	}
	return jobs[0], nil
}

func (s *Slurm) QueryRecentJobs(ctx context.Context, includeMemory bool) ([]*Job, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "job", "--all", "-o")
	if err != nil {
		if strings.Contains(err.Error(), "No jobs in the system") {
			return nil, nil
		}
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	jobs := parseScontrolJobs(out)
	if includeMemory {
		for _, job := range jobs {
			if job.State != entity.StateRunning {
				continue
			}
			job.MemoryUsed = s.queryMemory(ctx, job.Identity)
		}
	}
	return jobs, nil
}

// queryMemory sstat MaxRSS probe, best effort.
func (s *Slurm) queryMemory(ctx context.Context, id JobIdentity) int64 {
	out, err := s.cli.RunAs(ctx, s.user, "sstat", "-j", id.IdentityStr, "--parsable2", "--noheader", "--format=MaxRSS")
	if err != nil {
		return 0
	}
	var max int64
	for _, line := range strings.Split(out, "\n") {
		if n := parseSlurmSize(strings.TrimSpace(line)); n > max {
			max = n
		}
	}
	return max
}

func (s *Slurm) QueryJobRawInfo(ctx context.Context, id JobIdentity) (string, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "job", id.IdentityStr)
	if err != nil {
		return "", fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	return out, nil
}

func (s *Slurm) CancelJob(ctx context.Context, id JobIdentity) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scancel", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) RecycleResources(ctx context.Context, id JobIdentity) error {
	_, err := s.cli.RunAs(ctx, s.user, "scancel", "--quiet", id.IdentityStr)
	if err != nil && !slurmAlreadyReleased(err) {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func slurmAlreadyReleased(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Invalid job id") ||
		strings.Contains(msg, "already completing or completed")
}

func (s *Slurm) HoldJob(ctx context.Context, id JobIdentity) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "hold", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.HoldJobFailed.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) ReleaseJob(ctx context.Context, id JobIdentity) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "release", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.ReleaseJobFailed.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) RequeueJob(ctx context.Context, id JobIdentity) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "requeue", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) SuspendJob(ctx context.Context, id JobIdentity) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "suspend", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) ResumeJob(ctx context.Context, id JobIdentity) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "resume", id.IdentityStr); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

const (
	slurmPriorityMin int64 = 0
	slurmPriorityMax int64 = 4294967293
)

func (s *Slurm) UpdateJobPriority(ctx context.Context, id JobIdentity, value string) error {
	n, err := utils.ParseInt64(value)
	if err != nil || n < slurmPriorityMin || n > slurmPriorityMax {
		return fmt.Errorf("%s value=%s", errors.InvalidPriority.Cause, value)
	}
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "update", "jobid="+id.IdentityStr, fmt.Sprintf("Priority=%d", n)); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) GetPriorityValue(ctx context.Context) (int64, int64, error) {
	return slurmPriorityMin, slurmPriorityMax, nil
}

func (s *Slurm) QueryAvailableQueues(ctx context.Context) ([]*Queue, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "partition", "-o")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	var queues []*Queue
	for _, line := range strings.Split(out, "\n") {
		kv := parseKeyValueLine(line)
		name := kv["PartitionName"]
		if name == "" {
			continue
		}
		q := &Queue{Name: name, State: kv["State"]}
		q.Nodes, _ = utils.ParseInt64(kv["TotalNodes"])
		q.Cores, _ = utils.ParseInt64(kv["TotalCPUs"])
		q.Memory = parseSlurmSize(kv["MaxMemPerNode"])
		q.Gres = kv["TRES"]
		queues = append(queues, q)
	}
	return queues, nil
}

func (s *Slurm) GetStatus(ctx context.Context) error {
	if _, err := s.cli.RunAs(ctx, s.user, "scontrol", "ping"); err != nil {
		return fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	return nil
}

func (s *Slurm) GetRuntime(ctx context.Context, id JobIdentity) (int64, error) {
	out, err := s.cli.RunAs(ctx, s.user, "sacct", "-j", id.IdentityStr, "--parsable2", "--noheader", "-X", "--format=ElapsedRaw")
	if err != nil {
		return 0, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	return utils.ParseInt64(strings.Split(strings.TrimSpace(out), "\n")[0])
}

func (s *Slurm) GetLicenseFeature(ctx context.Context) (map[string]int64, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "licenses", "-o")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	features := map[string]int64{}
	for _, line := range strings.Split(out, "\n") {
		kv := parseKeyValueLine(line)
		if kv["LicenseName"] == "" {
			continue
		}
		total, _ := utils.ParseInt64(kv["Total"])
		features[kv["LicenseName"]] = total
	}
	return features, nil
}

func (s *Slurm) GetGresType(ctx context.Context) ([]string, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "config")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "="); i > 0 && strings.TrimSpace(line[:i]) == "GresTypes" {
			v := strings.TrimSpace(line[i+1:])
			if v == "" || v == "(null)" {
				return nil, nil
			}
			return strings.Split(v, ","), nil
		}
	}
	return nil, nil
}

func (s *Slurm) GetSchedulerResource(ctx context.Context) (map[string]string, error) {
	out, err := s.cli.RunAs(ctx, s.user, "scontrol", "show", "config")
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.SchedulerJobBase.Cause, err.Error())
	}
	res := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		if i := strings.Index(line, "="); i > 0 {
			res[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return res, nil
}

var sacctHistoryFormat = "JobIDRaw,JobName,User,Partition,State,Submit,Start,End,ElapsedRaw,ExitCode"

func (s *Slurm) GetHistoryJob(ctx context.Context, id JobIdentity) (*Job, error) {
	out, err := s.cli.RunAs(ctx, s.user, "sacct", "-j", id.IdentityStr, "--parsable2", "--noheader", "-X", "--format="+sacctHistoryFormat)
	if err != nil {
		return nil, fmt.Errorf("%s cause=%s", errors.QueryJobFailed.Cause, err.Error())
	}
	line := strings.Split(strings.TrimSpace(out), "\n")[0]
	fields := strings.Split(line, "|")
	if len(fields) < 10 {
		return nil, fmt.Errorf("%s cause=unexpected sacct output %q", errors.QueryJobFailed.Cause, line)
	}
	job := &Job{
		Identity:  JobIdentity{Id: fields[0], IdentityStr: fields[0], AltIdentityStr: fields[0]},
		Name:      fields[1],
		Submitter: fields[2],
		Queue:     fields[3],
		RawState:  fields[4],
		ExitCode:  fields[9],
	}
	job.State = MapState(job.RawState)
	job.SubmitTime = parseSlurmTime(fields[5])
	job.StartTime = parseSlurmTime(fields[6])
	job.EndTime = parseSlurmTime(fields[7])
	job.Runtime, _ = utils.ParseInt64(fields[8])
	return job, nil
}

// parseScontrolJobs parses `scontrol show job -o` output, one job per line.
func parseScontrolJobs(out string) []*Job {
	var jobs []*Job
	for _, line := range strings.Split(out, "\n") {
		kv := parseKeyValueLine(line)
		if kv["JobId"] == "" {
			continue
		}
		jobs = append(jobs, scontrolJob(kv))
	}
	return jobs
}

func scontrolJob(kv map[string]string) *Job {
	id := kv["JobId"]
	job := &Job{
		Identity:   JobIdentity{Id: id, IdentityStr: id, AltIdentityStr: id},
		Name:       kv["JobName"],
		Submitter:  stripUid(kv["UserId"]),
		Queue:      kv["Partition"],
		Comment:    kv["Comment"],
		RawState:   kv["JobState"],
		StdoutFile: kv["StdOut"],
		StderrFile: kv["StdErr"],
		ExitCode:   kv["ExitCode"],
		Priority:   kv["Priority"],
		Reason:     kv["Reason"],
	}
	if job.Comment == "(null)" {
		job.Comment = ""
	}
	// held pending jobs surface as a dedicated raw state
	if job.RawState == "PENDING" && strings.Contains(kv["Reason"], "Held") {
		job.RawState = "HOLD"
	}
	job.State = MapState(job.RawState)
	job.SubmitTime = parseSlurmTime(kv["SubmitTime"])
	job.StartTime = parseSlurmTime(kv["StartTime"])
	job.EndTime = parseSlurmTime(kv["EndTime"])
	job.Runtime = parseSlurmElapsed(kv["RunTime"])
	job.Tres = ConvertSlurmTres(kv["TRES"])
	hosts := ExpandNodeList(kv["NodeList"])
	perHost := perHostTres(job.Tres)
	for _, host := range hosts {
		job.Running = append(job.Running, RunningHost{Host: host, Tres: perHost})
	}
	return job
}

func stripUid(userId string) string {
	// UserId=alice(1001)
	if i := strings.IndexByte(userId, '('); i > 0 {
		return userId[:i]
	}
	return userId
}

// parseKeyValueLine parses scontrol -o style "K1=v1 K2=v2 ...". Tokens without
// '=' are appended to the previous value.
func parseKeyValueLine(line string) map[string]string {
	kv := map[string]string{}
	var last string
	for _, tok := range strings.Fields(line) {
		i := strings.IndexByte(tok, '=')
		if i <= 0 {
			if last != "" {
				kv[last] += " " + tok
			}
			continue
		}
		key := tok[:i]
		kv[key] = tok[i+1:]
		last = key
	}
	return kv
}

// parseSlurmTime "2006-01-02T15:04:05", Unknown/None/N/A map to zero.
func parseSlurmTime(s string) int64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "Unknown", "None", "N/A", "NONE":
		return 0
	}
	t, err := parseLocalTime("2006-01-02T15:04:05", s)
	if err != nil {
		return 0
	}
	return t
}

// parseSlurmElapsed "[dd-]hh:mm:ss"
func parseSlurmElapsed(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var days int64
	if i := strings.IndexByte(s, '-'); i > 0 {
		days, _ = utils.ParseInt64(s[:i])
		s = s[i+1:]
	}
	parts := strings.Split(s, ":")
	var secs int64
	for _, p := range parts {
		n, err := utils.ParseInt64(p)
		if err != nil {
			return 0
		}
		secs = secs*60 + n
	}
	return days*86400 + secs
}

// parseSlurmSize "4096K"/"16G"/"1234" to bytes-free integer units (MB for mem fields).
func parseSlurmSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "UNLIMITED" {
		return 0
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1024
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'T', 't':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(n) * mult
}

// ConvertSlurmTres maps "cpu=4,mem=8G,node=1,gres/gpu=2,license/x=1" to the
// canonical tuple "C:4,M:8G,N:1,G/gpu:2,L/x:1". billing and energy are dropped.
func ConvertSlurmTres(s string) string {
	var parts []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		i := strings.IndexByte(item, '=')
		if i <= 0 {
			continue
		}
		code, count := item[:i], item[i+1:]
		switch {
		case code == "cpu":
			parts = append(parts, "C:"+count)
		case code == "mem":
			parts = append(parts, "M:"+count)
		case code == "node":
			parts = append(parts, "N:"+count)
		case strings.HasPrefix(code, "gres/"):
			parts = append(parts, "G/"+strings.ReplaceAll(code[len("gres/"):], ":", "/")+":"+count)
		case strings.HasPrefix(code, "license/"):
			parts = append(parts, "L/"+code[len("license/"):]+":"+count)
		}
	}
	return strings.Join(parts, ",")
}

// perHostTres drops the node count from a job tuple for per-host rows.
func perHostTres(tuple string) string {
	var parts []string
	for _, item := range strings.Split(tuple, ",") {
		if strings.HasPrefix(item, "N:") || item == "" {
			continue
		}
		parts = append(parts, item)
	}
	return strings.Join(parts, ",")
}

// ExpandNodeList expands "c[1-3,5],gpu1" into individual host names.
func ExpandNodeList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "(null)" {
		return nil
	}
	var hosts []string
	for _, item := range splitNodeList(s) {
		open := strings.IndexByte(item, '[')
		if open < 0 {
			hosts = append(hosts, item)
			continue
		}
		close_ := strings.IndexByte(item, ']')
		if close_ < open {
			hosts = append(hosts, item)
			continue
		}
		prefix := item[:open]
		for _, r := range strings.Split(item[open+1:close_], ",") {
			bounds := strings.SplitN(r, "-", 2)
			if len(bounds) == 1 {
				hosts = append(hosts, prefix+bounds[0])
				continue
			}
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || hi < lo {
				hosts = append(hosts, prefix+r)
				continue
			}
			width := len(bounds[0])
			for n := lo; n <= hi; n++ {
				hosts = append(hosts, fmt.Sprintf("%s%0*d", prefix, width, n))
			}
		}
	}
	return hosts
}

// splitNodeList splits on commas outside brackets.
func splitNodeList(s string) []string {
	var items []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, s[start:i])
				start = i + 1
			}
		}
	}
	items = append(items, s[start:])
	return items
}
