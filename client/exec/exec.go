// Package exec shells out to scheduler CLIs, optionally as a target Unix user.
package exec

import (
	"bytes"
	"context"
	"fmt"
	osexec "os/exec"
	"strings"
)

type CommandFunc func(ctx context.Context, name string, args ...string) *osexec.Cmd

func NewClient() *Client {
	return &Client{command: osexec.CommandContext}
}

type Client struct {
	command CommandFunc
}

// Set test hook
func (c *Client) Set(command CommandFunc) *Client {
	c.command = command
	return c
}

// RunAs executes name args... as user. An empty user runs in-process identity.
func (c *Client) RunAs(ctx context.Context, user, name string, args ...string) (string, error) {
	var cmd *osexec.Cmd
	if user == "" {
		cmd = c.command(ctx, name, args...)
	} else {
		full := append([]string{"-u", user, "-H", name}, args...)
		cmd = c.command(ctx, "sudo", full...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("exec %s failed cause=%s stderr=%s", name, err.Error(), strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunAsWithInput feeds stdin, used for script submission from content.
func (c *Client) RunAsWithInput(ctx context.Context, user, input, name string, args ...string) (string, error) {
	var cmd *osexec.Cmd
	if user == "" {
		cmd = c.command(ctx, name, args...)
	} else {
		full := append([]string{"-u", user, "-H", name}, args...)
		cmd = c.command(ctx, "sudo", full...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("exec %s failed cause=%s stderr=%s", name, err.Error(), strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
