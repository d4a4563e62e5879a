package scheduler

import (
	"testing"

	"github.com/licoproject/lico-core/entity"
)

func Test_parseQstatJobs(t *testing.T) {
	out := "Job Id: 512.pbsserver\n" +
		"    Job_Name = vasp_relax\n" +
		"    Job_Owner = carol@login01\n" +
		"    job_state = R\n" +
		"    queue = workq\n" +
		"    qtime = Mon Aug 31 09:00:00 2026\n" +
		"    stime = Mon Aug 31 09:02:10 2026\n" +
		"    Output_Path = login01:/home/carol/vasp.o512\n" +
		"    Error_Path = login01:/home/carol/vasp.e512\n" +
		"    Priority = 0\n" +
		"    Variable_List = PBS_O_HOME=/home/carol,LICO_COMM\n" +
		"\tENT=LICO-77,PBS_O_LANG=en_US\n" +
		"    Resource_List.mem = 128gb\n" +
		"    Resource_List.ncpus = 64\n" +
		"    Resource_List.nodect = 2\n" +
		"    resources_used.walltime = 01:30:00\n" +
		"    resources_used.mem = 42gb\n" +
		"    exec_host = node01/0*32+node02/0*32\n"
	jobs := parseQstatJobs(out)
	if len(jobs) != 1 {
		t.Fatalf("jobs=%d", len(jobs))
	}
	j := jobs[0]
	if j.Identity.Id != "512" || j.Identity.IdentityStr != "512.pbsserver" {
		t.Errorf("identity=%+v", j.Identity)
	}
	if j.Name != "vasp_relax" || j.Submitter != "carol" || j.Queue != "workq" {
		t.Errorf("job=%+v", j)
	}
	if j.Comment != "LICO-77" {
		t.Errorf("comment=%q", j.Comment)
	}
	if j.RawState != "RUNNING" || j.State != entity.StateRunning {
		t.Errorf("raw=%s state=%s", j.RawState, j.State)
	}
	if j.SubmitTime == 0 || j.StartTime <= j.SubmitTime || j.EndTime != 0 {
		t.Errorf("submit=%d start=%d end=%d", j.SubmitTime, j.StartTime, j.EndTime)
	}
	if j.Runtime != 5400 {
		t.Errorf("runtime=%d", j.Runtime)
	}
	if j.Tres != "N:2,C:64,M:128gb" {
		t.Errorf("tres=%s", j.Tres)
	}
	if j.StdoutFile != "/home/carol/vasp.o512" || j.StderrFile != "/home/carol/vasp.e512" {
		t.Errorf("stdout=%s stderr=%s", j.StdoutFile, j.StderrFile)
	}
	if len(j.Running) != 2 || j.Running[0].Host != "node01" || j.Running[1].Host != "node02" {
		t.Errorf("running=%+v", j.Running)
	}
	if j.Running[0].Tres != "C:64,M:128gb" {
		t.Errorf("per host tres=%s", j.Running[0].Tres)
	}
	if j.MemoryUsed != 42*1024*1024 {
		t.Errorf("memory=%d", j.MemoryUsed)
	}
}

func Test_pbsComment(t *testing.T) {
	if c := pbsComment("PBS_O_HOME=/home/x,LICO_COMMENT=LICO-9,PBS_O_LANG=C"); c != "LICO-9" {
		t.Errorf("comment=%q", c)
	}
	if c := pbsComment("PBS_O_HOME=/home/x"); c != "" {
		t.Errorf("comment=%q", c)
	}
}

func Test_pbsExecHosts(t *testing.T) {
	hosts := pbsExecHosts("nodeA/0*8+nodeA/1*8+nodeB/0*8")
	if len(hosts) != 2 || hosts[0] != "nodeA" || hosts[1] != "nodeB" {
		t.Errorf("hosts=%v", hosts)
	}
	if hosts := pbsExecHosts(""); hosts != nil {
		t.Errorf("hosts=%v", hosts)
	}
}
