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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
)

type memDeadlines struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

func newMemDeadlines() *memDeadlines {
	return &memDeadlines{deadlines: make(map[string]time.Time)}
}

func (m *memDeadlines) SaveDeadline(key string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadlines[key] = deadline
	return nil
}

func (m *memDeadlines) LoadDeadline(key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deadlines[key]
	return d, ok, nil
}

func TestCountdownExecutor_Duration(t *testing.T) {
	c := NewCountdownExecutor(newMemDeadlines())
	task := eventbus.TaskReady{RunPath: "/runs/r1", TaskID: "wait", Config: map[string]any{"duration": "1s"}}

	result, err := c.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), `"mode": "duration"`)
}

func TestCountdownExecutor_UntilInPastCompletesImmediately(t *testing.T) {
	c := NewCountdownExecutor(newMemDeadlines())
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	task := eventbus.TaskReady{RunPath: "/runs/r1", TaskID: "wait", Config: map[string]any{"until": past}}

	start := time.Now()
	result, err := c.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, string(result.Data), `"mode": "until"`)
}

func TestCountdownExecutor_MissingBothIsPermanentError(t *testing.T) {
	c := NewCountdownExecutor(newMemDeadlines())
	task := eventbus.TaskReady{RunPath: "/runs/r1", TaskID: "wait", Config: map[string]any{}}

	_, err := c.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestCountdownExecutor_InvalidDurationIsPermanentError(t *testing.T) {
	c := NewCountdownExecutor(newMemDeadlines())
	task := eventbus.TaskReady{RunPath: "/runs/r1", TaskID: "wait", Config: map[string]any{"duration": "not-a-duration"}}

	_, err := c.Execute(context.Background(), task, nil)
	require.Error(t, err)
}
