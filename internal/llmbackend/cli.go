// Copyright 2025 The Conductor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llmbackend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIBackend invokes a locally installed AI CLI as a subprocess, grounded
// on the teacher's pkg/llm/providers/claudecode provider (CLI detection via
// exec.LookPath, invocation via exec.CommandContext with captured
// stdout/stderr). This is the concrete "AI backend" external collaborator
// for deployments that have such a CLI on PATH rather than a hosted API.
type CLIBackend struct {
	command string // e.g. "claude"
	args    []string
}

// NewCLIBackend constructs a CLIBackend. args are passed before the prompt
// is appended as the final argument (e.g. []string{"--print"}).
func NewCLIBackend(command string, args ...string) *CLIBackend {
	return &CLIBackend{command: command, args: args}
}

// Detect reports whether the backend's CLI is present on PATH.
func (c *CLIBackend) Detect() bool {
	_, err := exec.LookPath(c.command)
	return err == nil
}

func (c *CLIBackend) Name() string { return c.command }

func (c *CLIBackend) Complete(ctx context.Context, prompt, model string) (string, error) {
	args := append([]string{}, c.args...)
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", c.command, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
