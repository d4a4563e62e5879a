package scheduler

import (
	"testing"
	"time"

	"github.com/licoproject/lico-core/entity"
)

func Test_parseBjobs(t *testing.T) {
	out := "2201|lammps|dave|normal|RUN|Aug 31 10:00|Aug 31 10:05|-|600 second(s)|LICO-88|4*nodeA:4*nodeB|/home/dave/out|/home/dave/err|-|-|8|8 G\n" +
		"2202|short|erin|normal|DONE|Aug 31 08:00|Aug 31 08:01|Aug 31 08:02|60 second(s)|-|nodeC|-|-|0|-|1|-\n"
	jobs := parseBjobs(out)
	if len(jobs) != 2 {
		t.Fatalf("jobs=%d", len(jobs))
	}
	j := jobs[0]
	if j.Identity.Id != "2201" || j.Name != "lammps" || j.Submitter != "dave" {
		t.Errorf("job=%+v", j)
	}
	if j.Comment != "LICO-88" || j.RawState != "RUNNING" || j.State != entity.StateRunning {
		t.Errorf("comment=%s raw=%s state=%s", j.Comment, j.RawState, j.State)
	}
	if j.SubmitTime == 0 || j.StartTime <= j.SubmitTime || j.EndTime != 0 {
		t.Errorf("submit=%d start=%d end=%d", j.SubmitTime, j.StartTime, j.EndTime)
	}
	if j.Runtime != 600 {
		t.Errorf("runtime=%d", j.Runtime)
	}
	if j.Tres != "N:2,C:8,M:8G" {
		t.Errorf("tres=%s", j.Tres)
	}
	if len(j.Running) != 2 || j.Running[0].Host != "nodeA" || j.Running[1].Host != "nodeB" {
		t.Errorf("running=%+v", j.Running)
	}
	done := jobs[1]
	if done.RawState != "COMPLETED" || done.State != entity.StateCompleted {
		t.Errorf("raw=%s state=%s", done.RawState, done.State)
	}
	if done.Comment != "" || done.EndTime <= done.StartTime {
		t.Errorf("comment=%q start=%d end=%d", done.Comment, done.StartTime, done.EndTime)
	}
	if done.ExitCode != "0" {
		t.Errorf("exit=%s", done.ExitCode)
	}
}

func Test_lsfExecHosts(t *testing.T) {
	hosts := lsfExecHosts("8*nodeA:8*nodeA:8*nodeB")
	if len(hosts) != 2 || hosts[0] != "nodeA" || hosts[1] != "nodeB" {
		t.Errorf("hosts=%v", hosts)
	}
	if hosts := lsfExecHosts("-"); hosts != nil {
		t.Errorf("hosts=%v", hosts)
	}
}

func Test_Lsf_SetMemoryRetry(t *testing.T) {
	l := NewLsf("", nil).SetMemoryRetry(11 * time.Second)
	if l.memoryRetry != 11*time.Second {
		t.Errorf("retry=%s", l.memoryRetry)
	}
}

func Test_parseLsfRuntime(t *testing.T) {
	if n := parseLsfRuntime("123 second(s)"); n != 123 {
		t.Errorf("n=%d", n)
	}
	if n := parseLsfRuntime("-"); n != -1 {
		t.Errorf("n=%d", n)
	}
}
