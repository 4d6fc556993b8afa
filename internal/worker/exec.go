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

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// ExecExecutor implements the EXEC worker (§4.3.2): spawns a command,
// captures stdout/stderr, and on a configured timeout terminates it and
// fails the step. Grounded on the teacher's
// internal/action/shell/action.go (string-or-array command, working
// dir/env overrides) generalized with a per-step timeout.
type ExecExecutor struct {
	shell          string
	defaultTimeout time.Duration
}

// NewExecExecutor constructs an ExecExecutor. shell is the interpreter used
// for string-form commands ("sh" by default, per workers.exec.shell).
func NewExecExecutor(shell string, defaultTimeout time.Duration) *ExecExecutor {
	if shell == "" {
		shell = "sh"
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &ExecExecutor{shell: shell, defaultTimeout: defaultTimeout}
}

func (e *ExecExecutor) Name() string { return workload.WorkerExec }

type execOutput struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Command  string `json:"command"`
	Duration int64  `json:"duration"`
	Filtered bool   `json:"filtered,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (e *ExecExecutor) Execute(ctx context.Context, task eventbus.TaskReady, _ map[string]InputFile) (Result, error) {
	cmdLine, args, err := e.buildCommand(task.Config)
	if err != nil {
		return Result{}, &conductorerrors.PermanentError{Cause: err}
	}

	timeoutMs := configInt(task.Config, "timeout", int(e.defaultTimeout.Milliseconds()))
	timeout := time.Duration(timeoutMs) * time.Millisecond

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cwd := configString(task.Config, "cwd")
	if err := checkPathAllowed(task.Permissions, cwd); err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	if env := configStringMap(task.Config, "env"); len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, &conductorerrors.TransientError{Cause: fmt.Errorf("exec: command timed out after %s", timeout)}
	}

	out := execOutput{
		Command:  cmdLine,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: duration.Milliseconds(),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
		}
		out.Success = false
		out.Error = runErr.Error()
	} else {
		out.Success = true
		out.ExitCode = 0

		if filter := configString(task.Config, "filter"); filter != "" {
			re, err := regexp.Compile(filter)
			if err != nil {
				return Result{}, &conductorerrors.PermanentError{Cause: fmt.Errorf("exec: invalid filter regex: %w", err)}
			}
			out.Stdout = filterLines(out.Stdout, re)
			out.Filtered = true
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Format: "json"}, nil
}

// checkPathAllowed enforces the workload's optional filesystem allow-list
// (§3 [ADDED]: "enforced only for the EXEC and FETCH workers") against a
// step's working directory. A nil Permissions or nil/empty Filesystem
// block leaves the worker unrestricted; an empty cwd never needs checking
// since it inherits the daemon's own working directory, not an
// instance-controlled path.
func checkPathAllowed(perms *workload.Permissions, cwd string) error {
	if cwd == "" || perms == nil || perms.Filesystem == nil || len(perms.Filesystem.AllowedPaths) == 0 {
		return nil
	}
	for _, pattern := range perms.Filesystem.AllowedPaths {
		if ok, _ := doublestar.Match(pattern, cwd); ok {
			return nil
		}
	}
	return &conductorerrors.PermanentError{Cause: fmt.Errorf("filesystem-permission violation: cwd %q is not in allowedPaths", cwd)}
}

func (e *ExecExecutor) buildCommand(cfg map[string]any) (string, []string, error) {
	raw, ok := cfg["command"]
	if !ok {
		return "", nil, fmt.Errorf("exec: command is required")
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", nil, fmt.Errorf("exec: command is required")
		}
		args := configStringSlice(cfg, "args")
		full := v
		argv := []string{e.shell, "-c", v}
		if len(args) > 0 {
			full = v + " " + strings.Join(args, " ")
			argv = []string{e.shell, "-c", full}
		}
		return full, argv, nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		if len(parts) == 0 {
			return "", nil, fmt.Errorf("exec: command array is empty")
		}
		return strings.Join(parts, " "), parts, nil
	default:
		return "", nil, fmt.Errorf("exec: command must be a string or array")
	}
}

func filterLines(text string, re *regexp.Regexp) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		if re.MatchString(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
