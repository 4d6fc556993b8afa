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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

func TestExecExecutor_SuccessfulCommand(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{Config: map[string]any{"command": "echo hello"}}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), `"success": true`)
	assert.Contains(t, string(result.Data), "hello")
}

func TestExecExecutor_NonZeroExitIsNotWorkerError(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{Config: map[string]any{"command": "exit 3"}}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err, "non-zero exit is recorded in the output, not a worker-level error")
	assert.Contains(t, string(result.Data), `"exitCode": 3`)
	assert.Contains(t, string(result.Data), `"success": false`)
}

func TestExecExecutor_TimeoutIsWorkerError(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{Config: map[string]any{"command": "sleep 5", "timeout": 50}}

	_, err := e.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestExecExecutor_MissingCommandIsPermanentError(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{Config: map[string]any{}}

	_, err := e.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestExecExecutor_CwdOutsideAllowedPathsIsPermanentError(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{
		Config: map[string]any{"command": "echo hello", "cwd": "/etc"},
		Permissions: &workload.Permissions{
			Filesystem: &workload.FilesystemPermissions{AllowedPaths: []string{"/data/**"}},
		},
	}

	_, err := e.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestExecExecutor_CwdWithinAllowedPathsSucceeds(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{
		Config: map[string]any{"command": "echo hello", "cwd": "/tmp"},
		Permissions: &workload.Permissions{
			Filesystem: &workload.FilesystemPermissions{AllowedPaths: []string{"/tmp/**", "/tmp"}},
		},
	}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "hello")
}

func TestExecExecutor_FilterReducesStdout(t *testing.T) {
	e := NewExecExecutor("sh", time.Second)
	task := eventbus.TaskReady{Config: map[string]any{
		"command": "printf 'keep1\\nskip\\nkeep2\\n'",
		"filter":  "^keep",
	}}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "keep1")
	assert.NotContains(t, string(result.Data), "skip")
}
