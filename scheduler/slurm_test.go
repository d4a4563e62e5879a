package scheduler

import (
	"reflect"
	"testing"

	"github.com/licoproject/lico-core/entity"
)

func Test_parseScontrolJobs(t *testing.T) {
	out := "JobId=1077 JobName=wave_sim UserId=alice(1001) Priority=4294901741 Partition=compute JobState=RUNNING Reason=None " +
		"SubmitTime=2026-08-30T10:00:00 StartTime=2026-08-30T10:01:30 EndTime=Unknown RunTime=00:12:05 " +
		"NodeList=c[01-03] Comment=LICO-42 StdOut=/home/alice/wave.out StdErr=/home/alice/wave.err ExitCode=0:0 " +
		"TRES=cpu=96,mem=384G,node=3,billing=96\n" +
		"JobId=1078 JobName=idle UserId=bob(1002) Partition=compute JobState=PENDING Reason=JobHeldUser SubmitTime=2026-08-30T11:00:00 StartTime=Unknown EndTime=Unknown RunTime=00:00:00 NodeList=(null) Comment=(null) TRES=cpu=4,node=1\n"
	jobs := parseScontrolJobs(out)
	if len(jobs) != 2 {
		t.Fatalf("jobs=%d", len(jobs))
	}
	j := jobs[0]
	if j.Identity.Id != "1077" || j.Name != "wave_sim" || j.Submitter != "alice" {
		t.Errorf("job=%+v", j)
	}
	if j.Comment != "LICO-42" || j.State != entity.StateRunning || j.Runtime != 725 {
		t.Errorf("comment=%s state=%s runtime=%d", j.Comment, j.State, j.Runtime)
	}
	if j.Tres != "C:96,M:384G,N:3" {
		t.Errorf("tres=%s", j.Tres)
	}
	if len(j.Running) != 3 || j.Running[0].Host != "c01" || j.Running[2].Host != "c03" {
		t.Errorf("running=%+v", j.Running)
	}
	if j.Running[0].Tres != "C:96,M:384G" {
		t.Errorf("per host tres=%s", j.Running[0].Tres)
	}
	held := jobs[1]
	if held.RawState != "HOLD" || held.State != entity.StateHold {
		t.Errorf("raw=%s state=%s", held.RawState, held.State)
	}
	if held.Comment != "" || held.StartTime != 0 {
		t.Errorf("comment=%q start=%d", held.Comment, held.StartTime)
	}
}

func Test_ExpandNodeList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"c1", []string{"c1"}},
		{"c1,c2", []string{"c1", "c2"}},
		{"c[1-3]", []string{"c1", "c2", "c3"}},
		{"c[01-03]", []string{"c01", "c02", "c03"}},
		{"c[1,3-4],gpu1", []string{"c1", "c3", "c4", "gpu1"}},
		{"(null)", nil},
		{"", nil},
	}
	for _, c := range cases {
		if got := ExpandNodeList(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("in=%q got=%v want=%v", c.in, got, c.want)
		}
	}
}

func Test_ConvertSlurmTres(t *testing.T) {
	got := ConvertSlurmTres("cpu=4,mem=16G,node=2,billing=4,gres/gpu:v100=2,license/fluent=1")
	want := "C:4,M:16G,N:2,G/gpu/v100:2,L/fluent:1"
	if got != want {
		t.Errorf("got=%s want=%s", got, want)
	}
}

func Test_parseSlurmElapsed(t *testing.T) {
	if n := parseSlurmElapsed("1-02:03:04"); n != 93784 {
		t.Errorf("n=%d", n)
	}
	if n := parseSlurmElapsed("02:03:04"); n != 7384 {
		t.Errorf("n=%d", n)
	}
	if n := parseSlurmElapsed(""); n != 0 {
		t.Errorf("n=%d", n)
	}
}
