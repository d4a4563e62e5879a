// Package monitor is a thin client for the cluster monitor service.
package monitor

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
)

const defaultTimeout = 10 * time.Second

type GpuInfo struct {
	Index   int64 `json:"index"`
	MigMode bool  `json:"mig_mode"`
}

type NodeResource struct {
	Hostname string    `json:"hostname"`
	Gpus     []GpuInfo `json:"gpus"`
}

func NewClient(baseUrl string) *Client {
	return &Client{baseUrl: baseUrl, cli: &http.Client{Timeout: defaultTimeout}}
}

type Client struct {
	baseUrl string
	cli     *http.Client
}

// GetClusterResource per-node GPU layout including MIG mode flags.
func (c *Client) GetClusterResource() ([]*NodeResource, error) {
	resp, err := c.cli.Get(c.baseUrl + "/cluster/resource")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("monitor cluster/resource http.status=%s", resp.Status)
	}
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var res []*NodeResource
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("monitor cluster/resource decode failed cause=%s", err.Error())
	}
	return res, nil
}

// MigIndexes returns the set of MIG-enabled gpu indexes per node.
func MigIndexes(res []*NodeResource) map[string]map[int64]bool {
	out := map[string]map[int64]bool{}
	for _, node := range res {
		for _, gpu := range node.Gpus {
			if !gpu.MigMode {
				continue
			}
			if out[node.Hostname] == nil {
				out[node.Hostname] = map[int64]bool{}
			}
			out[node.Hostname][gpu.Index] = true
		}
	}
	return out
}
