// Package directory is a thin client for the cluster directory service.
package directory

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
)

const defaultTimeout = 10 * time.Second

func NewClient(baseUrl string) *Client {
	return &Client{baseUrl: baseUrl, cli: &http.Client{Timeout: defaultTimeout}}
}

type Client struct {
	baseUrl string
	cli     *http.Client
}

func (c *Client) GetHostlist() ([]string, error) {
	return c.nodelist("/nodes")
}

func (c *Client) GetRackNodelist(rack string) ([]string, error) {
	return c.nodelist("/racks/" + rack + "/nodes")
}

func (c *Client) GetGroupNodelist(group string) ([]string, error) {
	return c.nodelist("/groups/" + group + "/nodes")
}

func (c *Client) nodelist(path string) ([]string, error) {
	resp, err := c.cli.Get(c.baseUrl + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("directory %s http.status=%s", path, resp.Status)
	}
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var nodes []string
	if err := json.Unmarshal(b, &nodes); err != nil {
		return nil, fmt.Errorf("directory %s decode failed cause=%s", path, err.Error())
	}
	return nodes, nil
}
