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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
)

func newTestAlertExecutor(t *testing.T) (*AlertExecutor, string) {
	t.Helper()
	dir := t.TempDir()
	deliverers := map[string]Deliverer{
		"toast": ToastDeliverer{},
		"sound": SoundDeliverer{},
		"log":   LogDeliverer{AlertsDir: dir},
	}
	return NewAlertExecutor(deliverers), dir
}

func TestAlertExecutor_LogChannelPersistsDescriptor(t *testing.T) {
	e, dir := newTestAlertExecutor(t)
	task := eventbus.TaskReady{
		PlanID: "p1", TaskID: "alert-step",
		Config: map[string]any{"title": "Hi", "message": "world", "type": "log"},
	}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), `"success": true`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Ext(entries[0].Name()), ".json")
}

func TestAlertExecutor_AllChannelsFireAndAtLeastOneSucceeds(t *testing.T) {
	e, _ := newTestAlertExecutor(t)
	task := eventbus.TaskReady{
		Config: map[string]any{"title": "Hi", "message": "world", "type": "all"},
	}

	result, err := e.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "toast")
	assert.Contains(t, string(result.Data), "sound")
	assert.Contains(t, string(result.Data), "log")
}

func TestAlertExecutor_MissingTitleIsPermanentError(t *testing.T) {
	e, _ := newTestAlertExecutor(t)
	task := eventbus.TaskReady{Config: map[string]any{"message": "world"}}

	_, err := e.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestAlertExecutor_UnknownTypeIsPermanentError(t *testing.T) {
	e, _ := newTestAlertExecutor(t)
	task := eventbus.TaskReady{Config: map[string]any{"title": "Hi", "message": "world", "type": "carrier-pigeon"}}

	_, err := e.Execute(context.Background(), task, nil)
	require.Error(t, err)
}
