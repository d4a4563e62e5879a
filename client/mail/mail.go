// Package mail is a thin client for the mail agent.
package mail

import (
	"bytes"

	json "github.com/json-iterator/go"
	"github.com/licoproject/lico-core/pkg/utils"
)

func NewClient(baseUrl string) *Client {
	return &Client{baseUrl: baseUrl}
}

type Client struct {
	baseUrl string
}

type sendRequest struct {
	Target []string `json:"target"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
}

func (c *Client) Send(target []string, title, body string) error {
	b, err := json.Marshal(&sendRequest{Target: target, Title: title, Body: body})
	if err != nil {
		return err
	}
	return utils.Post(c.baseUrl+"/messages", bytes.NewReader(b))
}
