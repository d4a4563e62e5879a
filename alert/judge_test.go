package alert

import (
	"sort"
	"testing"

	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/tsdb"
)

func nodesOf(targets []Target) []string {
	var nodes []string
	for _, t := range targets {
		nodes = append(nodes, t.Node)
	}
	sort.Strings(nodes)
	return nodes
}

func Test_Judge_gt_min_aggregate(t *testing.T) {
	// $gt aggregates the per-node MIN and fires when min >= threshold
	p := &entity.Policy{Metric: entity.MetricCpuUsage, PortalOp: entity.OpGt, Threshold: 90}
	samples := []tsdb.Sample{
		{Node: "c1", Index: -1, Val: 91},
		{Node: "c1", Index: -1, Val: 92},
		{Node: "c1", Index: -1, Val: 93},
		{Node: "c2", Index: -1, Val: 95},
		{Node: "c2", Index: -1, Val: 40},
	}
	got := nodesOf(Judge(p, samples, nil))
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("Judge = %v, want [c1]", got)
	}
}

func Test_Judge_lt_max_aggregate(t *testing.T) {
	// $lt aggregates the per-node MAX and fires when max <= threshold
	p := &entity.Policy{Metric: entity.MetricDisk, PortalOp: entity.OpLt, Threshold: 10}
	samples := []tsdb.Sample{
		{Node: "c1", Index: -1, Val: 5},
		{Node: "c1", Index: -1, Val: 9},
		{Node: "c2", Index: -1, Val: 9},
		{Node: "c2", Index: -1, Val: 11},
	}
	got := nodesOf(Judge(p, samples, nil))
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("Judge = %v, want [c1]", got)
	}
}

func Test_Judge_node_restriction(t *testing.T) {
	p := &entity.Policy{Metric: entity.MetricCpuUsage, PortalOp: entity.OpGte, Threshold: 50}
	samples := []tsdb.Sample{
		{Node: "c1", Index: -1, Val: 60},
		{Node: "c2", Index: -1, Val: 60},
	}
	got := nodesOf(Judge(p, samples, map[string]bool{"c2": true}))
	if len(got) != 1 || got[0] != "c2" {
		t.Fatalf("Judge = %v, want [c2]", got)
	}
}

func Test_Judge_gpu_index_grouping(t *testing.T) {
	p := &entity.Policy{Metric: entity.MetricGpuTemp, PortalOp: entity.OpGt, Threshold: 80}
	samples := []tsdb.Sample{
		{Node: "g1", Index: 0, Val: 85},
		{Node: "g1", Index: 0, Val: 90},
		{Node: "g1", Index: 1, Val: 30},
	}
	targets := Judge(p, samples, nil)
	if len(targets) != 1 {
		t.Fatalf("expected one target, got %v", targets)
	}
	if targets[0].Node != "g1" || targets[0].Index != 0 {
		t.Fatalf("target = %+v, want g1/0", targets[0])
	}
}

func Test_Judge_health(t *testing.T) {
	p := &entity.Policy{Metric: entity.MetricHardware, PortalOp: entity.OpGt}
	samples := []tsdb.Sample{
		{Node: "c1", Index: -1, Raw: `{"health":"ok"}`},
		{Node: "c2", Index: -1, Raw: `{"health":"critical"}`},
		{Node: "c3", Index: -1, Raw: `{"health":null}`},
		{Node: "c4", Index: -1, Raw: `{}`},
		{Node: "c5", Index: -1, Raw: ``},
		{Node: "c6", Index: -1, Raw: `{"health":"On"}`},
	}
	got := nodesOf(Judge(p, samples, nil))
	if len(got) != 1 || got[0] != "c2" {
		t.Fatalf("Judge = %v, want [c2]", got)
	}
}

func Test_Judge_discovery_carries_payload(t *testing.T) {
	p := &entity.Policy{Metric: entity.MetricHardwareDiscovery}
	raw := `{"health":"changed","disk":"sda removed"}`
	samples := []tsdb.Sample{{Node: "c1", Index: -1, Raw: raw}}
	targets := Judge(p, samples, nil)
	if len(targets) != 1 {
		t.Fatalf("expected one target, got %v", targets)
	}
	if targets[0].Comment != raw {
		t.Fatalf("discovery target must carry the raw payload, got %q", targets[0].Comment)
	}
}

func Test_MigExcluded(t *testing.T) {
	cases := []struct {
		metric entity.MetricKind
		want   bool
	}{
		{entity.MetricGpuUtil, true},
		{entity.MetricGpuMem, true},
		{entity.MetricGpuTemp, false},
		{entity.MetricCpuUsage, false},
	}
	for _, c := range cases {
		if got := MigExcluded(c.metric); got != c.want {
			t.Errorf("MigExcluded(%s) = %v, want %v", c.metric, got, c.want)
		}
	}
}
