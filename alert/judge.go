package alert

import (
	"strings"

	json "github.com/json-iterator/go"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/tsdb"
)

// Target one node (and GPU index) a policy fired for.
type Target struct {
	Node    string
	Index   int64
	Comment string
}

// HealthMetric reports whether the metric carries a health JSON document
// instead of a numeric value.
func HealthMetric(m entity.MetricKind) bool {
	switch m {
	case entity.MetricNodeActive, entity.MetricHardware, entity.MetricHardwareDiscovery:
		return true
	}
	return false
}

func GpuKind(m entity.MetricKind) bool {
	switch m {
	case entity.MetricGpuUtil, entity.MetricGpuTemp, entity.MetricGpuMem:
		return true
	}
	return false
}

// MigExcluded reports whether MIG-subdivided devices are dropped from the
// sample set. Temperature stays per physical device and is kept.
func MigExcluded(m entity.MetricKind) bool {
	switch m {
	case entity.MetricGpuUtil, entity.MetricGpuMem:
		return true
	}
	return false
}

// Judge evaluates one policy against its samples. nodes restricts the sample
// set when non-nil. Threshold semantics follow the portal convention: $lt and
// $lte aggregate the per-node MAX and fire when max <= threshold, $gt and
// $gte aggregate the MIN and fire when min >= threshold.
func Judge(p *entity.Policy, samples []tsdb.Sample, nodes map[string]bool) []Target {
	if HealthMetric(p.Metric) {
		return judgeHealth(p, samples, nodes)
	}
	type key struct {
		node  string
		index int64
	}
	agg := map[key]float64{}
	for _, s := range samples {
		if nodes != nil && !nodes[s.Node] {
			continue
		}
		k := key{node: s.Node, index: s.Index}
		cur, ok := agg[k]
		switch p.PortalOp {
		case entity.OpLt, entity.OpLte:
			if !ok || s.Val > cur {
				agg[k] = s.Val
			}
		case entity.OpGt, entity.OpGte:
			if !ok || s.Val < cur {
				agg[k] = s.Val
			}
		}
	}
	var targets []Target
	for k, v := range agg {
		fired := false
		switch p.PortalOp {
		case entity.OpLt, entity.OpLte:
			fired = v <= p.Threshold
		case entity.OpGt, entity.OpGte:
			fired = v >= p.Threshold
		}
		if fired {
			targets = append(targets, Target{Node: k.node, Index: k.index})
		}
	}
	return targets
}

func judgeHealth(p *entity.Policy, samples []tsdb.Sample, nodes map[string]bool) []Target {
	var targets []Target
	seen := map[string]bool{}
	for _, s := range samples {
		if nodes != nil && !nodes[s.Node] {
			continue
		}
		if seen[s.Node] {
			continue
		}
		if healthOk(s.Raw) {
			continue
		}
		seen[s.Node] = true
		t := Target{Node: s.Node, Index: s.Index}
		if p.Metric == entity.MetricHardwareDiscovery {
			t.Comment = s.Raw
		}
		targets = append(targets, t)
	}
	return targets
}

// healthOk parses the health field out of a health JSON payload; a missing
// or null field counts as healthy.
func healthOk(raw string) bool {
	if raw == "" {
		return true
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return true
	}
	h, ok := doc["health"]
	if !ok || h == nil {
		return true
	}
	hs, ok := h.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(hs) {
	case "on", "ok", "null", "":
		return true
	}
	return false
}
