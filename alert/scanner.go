// Package alert scans time-series metrics against the active policies and
// records fired alerts, deduplicated per (policy, node, index).
package alert

import (
	"context"

	json "github.com/json-iterator/go"
	"github.com/licoproject/lico-core/client/directory"
	"github.com/licoproject/lico-core/client/monitor"
	"github.com/licoproject/lico-core/entity"
	"github.com/licoproject/lico-core/infrastructure/storage"
	"github.com/licoproject/lico-core/infrastructure/tsdb"
	"github.com/licoproject/lico-core/log"
)

// metricNames metric kind to time-series metric name.
var metricNames = map[entity.MetricKind]string{
	entity.MetricCpuUsage:          "cpu_util",
	entity.MetricMemoryUtil:        "memory_util",
	entity.MetricDisk:              "disk_util",
	entity.MetricElectric:          "node_power",
	entity.MetricTemp:              "node_temp",
	entity.MetricHardware:          "node_health",
	entity.MetricNodeActive:        "node_active",
	entity.MetricGpuUtil:           "gpu_util",
	entity.MetricGpuTemp:           "gpu_temp",
	entity.MetricGpuMem:            "gpu_mem_usage",
	entity.MetricHardwareDiscovery: "hardware_discovery",
}

// Notifier fans a fresh alert out to the configured handlers.
type Notifier interface {
	Notify(policy *entity.Policy, alert *entity.Alert)
}

// Scanner runs the scan for one metric kind.
type Scanner struct {
	metric    entity.MetricKind
	tsdb      tsdb.Reader
	directory *directory.Client
	monitor   *monitor.Client
	notifier  Notifier
}

func NewScanner(metric entity.MetricKind, reader tsdb.Reader, dir *directory.Client, mon *monitor.Client, notifier Notifier) *Scanner {
	return &Scanner{metric: metric, tsdb: reader, directory: dir, monitor: mon, notifier: notifier}
}

// Scan evaluates every active policy of this scanner's metric kind.
// Per-policy failures are logged and do not abort the scan.
func (s *Scanner) Scan(ctx context.Context) {
	policies, err := storage.GetFactory().GetActivePolicies(ctx, s.metric)
	if err != nil {
		log.Logger().Error("Scanner.Scan metric=%s GetActivePolicies failed cause=%s", s.metric, err.Error())
		return
	}
	for _, p := range policies {
		if err := s.scanPolicy(ctx, p); err != nil {
			log.Logger().Error("Scanner.Scan policy_id=%d metric=%s failed cause=%s", p.Id, s.metric, err.Error())
		}
	}
}

func (s *Scanner) scanPolicy(ctx context.Context, p *entity.Policy) error {
	nodes, err := s.resolveNodes(p.NodeFilter)
	if err != nil {
		return err
	}
	samples, err := s.samples(ctx, p)
	if err != nil {
		return err
	}
	for _, t := range Judge(p, samples, nodes) {
		if err := Create(ctx, p.Id, t, s.notifier); err != nil {
			log.Logger().Error("Scanner.scanPolicy policy_id=%d node=%s create alert failed cause=%s", p.Id, t.Node, err.Error())
		}
	}
	return nil
}

func (s *Scanner) samples(ctx context.Context, p *entity.Policy) ([]tsdb.Sample, error) {
	name := metricNames[s.metric]
	if GpuKind(s.metric) {
		samples, err := s.tsdb.GpuSamples(ctx, name, p.Duration)
		if err != nil {
			return nil, err
		}
		if MigExcluded(s.metric) {
			samples = s.excludeMig(samples)
		}
		return samples, nil
	}
	if s.metric == entity.MetricHardwareDiscovery {
		return s.tsdb.NodeLast(ctx, name)
	}
	return s.tsdb.NodeSamples(ctx, name, p.Duration)
}

// excludeMig drops samples of MIG-subdivided devices; their aggregate
// metrics are not comparable to whole-GPU thresholds.
func (s *Scanner) excludeMig(samples []tsdb.Sample) []tsdb.Sample {
	res, err := s.monitor.GetClusterResource()
	if err != nil {
		log.Logger().Warn("Scanner.excludeMig GetClusterResource failed cause=%s", err.Error())
		return samples
	}
	mig := monitor.MigIndexes(res)
	kept := samples[:0]
	for _, sm := range samples {
		if idx, ok := mig[sm.Node]; ok && idx[sm.Index] {
			continue
		}
		kept = append(kept, sm)
	}
	return kept
}

// nodeFilter policy node scope, resolved against the cluster directory.
type nodeFilter struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// resolveNodes returns nil for an unrestricted policy.
func (s *Scanner) resolveNodes(filter string) (map[string]bool, error) {
	if filter == "" {
		return nil, nil
	}
	f := &nodeFilter{}
	if err := json.Unmarshal([]byte(filter), f); err != nil {
		return nil, err
	}
	set := map[string]bool{}
	switch f.Type {
	case "", "all":
		return nil, nil
	case "hostname":
		for _, n := range f.Values {
			set[n] = true
		}
	case "rack":
		for _, r := range f.Values {
			nodes, err := s.directory.GetRackNodelist(r)
			if err != nil {
				return nil, err
			}
			for _, n := range nodes {
				set[n] = true
			}
		}
	case "group":
		for _, g := range f.Values {
			nodes, err := s.directory.GetGroupNodelist(g)
			if err != nil {
				return nil, err
			}
			for _, n := range nodes {
				set[n] = true
			}
		}
	}
	return set, nil
}
