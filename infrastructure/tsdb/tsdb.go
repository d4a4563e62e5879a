// Package tsdb reads aggregated monitoring samples from the time-series store.
// Queries bind the metric name and scan window through the store's parameter
// facility; measurement names stay compile-time constants.
package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/licoproject/lico-core/pkg/constant"
)

// Sample one datapoint. Index is -1 for single-index metrics. Raw carries the
// textual value for health-style metrics whose value is a JSON document.
type Sample struct {
	Node  string
	Index int64
	Val   float64
	Raw   string
}

type Reader interface {
	// NodeSamples raw node_metric rows within the last duration seconds.
	NodeSamples(ctx context.Context, metric string, duration int64) ([]Sample, error)
	// NodeLast latest node_metric row per host.
	NodeLast(ctx context.Context, metric string) ([]Sample, error)
	// GpuSamples raw gpu_metric rows within the last duration seconds.
	GpuSamples(ctx context.Context, metric string, duration int64) ([]Sample, error)
	Close() error
}

func NewStore(addr, database string) (*Store, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{Addr: addr, Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("tsdb.NewStore failed cause=%s", err.Error())
	}
	return &Store{cli: c, database: database}, nil
}

type Store struct {
	cli      client.Client
	database string
}

func (s *Store) Close() error {
	return s.cli.Close()
}

func (s *Store) NodeSamples(ctx context.Context, metric string, duration int64) ([]Sample, error) {
	cmd := fmt.Sprintf("select value as val from %s where metric = $metric and time > now() - $duration group by host", constant.NodeMetric)
	return s.query(cmd, map[string]interface{}{
		"metric":   metric,
		"duration": duration * int64(time.Second),
	})
}

func (s *Store) NodeLast(ctx context.Context, metric string) ([]Sample, error) {
	cmd := fmt.Sprintf("select last(value) as val from %s where metric = $metric group by host", constant.NodeMetric)
	return s.query(cmd, map[string]interface{}{"metric": metric})
}

func (s *Store) GpuSamples(ctx context.Context, metric string, duration int64) ([]Sample, error) {
	cmd := fmt.Sprintf("select value as val from %s where metric = $metric and time > now() - $duration group by host, index", constant.GpuMetric)
	return s.query(cmd, map[string]interface{}{
		"metric":   metric,
		"duration": duration * int64(time.Second),
	})
}

func (s *Store) query(cmd string, params map[string]interface{}) ([]Sample, error) {
	q := client.NewQueryWithParameters(cmd, s.database, "s", params)
	resp, err := s.cli.Query(q)
	if err != nil {
		return nil, fmt.Errorf("tsdb query failed cause=%s", err.Error())
	}
	if resp.Error() != nil {
		return nil, fmt.Errorf("tsdb query failed cause=%s", resp.Error().Error())
	}
	var samples []Sample
	for _, result := range resp.Results {
		for _, series := range result.Series {
			node := series.Tags["host"]
			index := int64(-1)
			if v, ok := series.Tags["index"]; ok {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					index = n
				}
			}
			valCol := -1
			for i, col := range series.Columns {
				if col == "val" {
					valCol = i
				}
			}
			if valCol < 0 {
				continue
			}
			for _, row := range series.Values {
				if valCol >= len(row) || row[valCol] == nil {
					continue
				}
				samples = append(samples, toSample(node, index, row[valCol]))
			}
		}
	}
	return samples, nil
}

func toSample(node string, index int64, v interface{}) Sample {
	sample := Sample{Node: node, Index: index}
	switch val := v.(type) {
	case json.Number:
		sample.Val, _ = val.Float64()
		sample.Raw = val.String()
	case float64:
		sample.Val = val
		sample.Raw = strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		sample.Raw = val
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			sample.Val = f
		}
	}
	return sample
}
