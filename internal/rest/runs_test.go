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

package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

type fakeRunService struct {
	instanceID string
	err        error
}

func (f *fakeRunService) Submit(ctx context.Context, def *workload.Definition, input map[string]any) (string, error) {
	return f.instanceID, f.err
}

func TestRunHandlers_RunAndGet(t *testing.T) {
	runsDir := t.TempDir()
	store := manifest.NewStore()

	svc := newFakeWorkloadService(t)
	svc.catalog["weather"] = &workload.Definition{ID: "weather", Name: "weather"}

	h := &runHandlers{
		exec:     &fakeRunService{instanceID: "weather-2026-07-31-090000"},
		root:     RunsRoot{Dir: runsDir, Store: store},
		workload: svc,
	}

	req := httptest.NewRequest(http.MethodPost, "/run/weather", nil)
	req.SetPathValue("id", "weather")
	rec := httptest.NewRecorder()
	h.handleRun(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "weather-2026-07-31-090000")

	runDir := filepath.Join(runsDir, "weather-2026-07-31-090000")
	_, err := store.Create(runDir, manifest.CreateOptions{
		InstanceID: "weather-2026-07-31-090000", WorkloadID: "weather", WorkloadName: "weather",
		StartedAt: time.Now(), CreatedBy: "test",
	})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/runs/weather-2026-07-31-090000", nil)
	req.SetPathValue("id", "weather-2026-07-31-090000")
	rec = httptest.NewRecorder()
	h.handleGet(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), manifest.StatusPending)
}

func TestRunHandlers_RunUnknownWorkloadIsNotFound(t *testing.T) {
	h := &runHandlers{
		exec:     &fakeRunService{},
		root:     RunsRoot{Dir: t.TempDir(), Store: manifest.NewStore()},
		workload: newFakeWorkloadService(t),
	}
	req := httptest.NewRequest(http.MethodPost, "/run/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.handleRun(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandlers_ListEnumeratesRunDirectories(t *testing.T) {
	runsDir := t.TempDir()
	store := manifest.NewStore()
	h := &runHandlers{root: RunsRoot{Dir: runsDir, Store: store}}

	runDir := filepath.Join(runsDir, "weather-2026-07-31-090000")
	_, err := store.Create(runDir, manifest.CreateOptions{
		InstanceID: "weather-2026-07-31-090000", WorkloadID: "weather", WorkloadName: "weather",
		StartedAt: time.Now(), CreatedBy: "test",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	h.handleList(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "weather-2026-07-31-090000")
}

func TestRunHandlers_DeleteRejectsPathTraversal(t *testing.T) {
	h := &runHandlers{root: RunsRoot{Dir: t.TempDir(), Store: manifest.NewStore()}}
	req := httptest.NewRequest(http.MethodDelete, "/runs/..", nil)
	req.SetPathValue("id", "../etc")
	rec := httptest.NewRecorder()
	h.handleDelete(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunHandlers_PurgeFailedOnlyRemovesFailedRuns(t *testing.T) {
	runsDir := t.TempDir()
	store := manifest.NewStore()
	h := &runHandlers{root: RunsRoot{Dir: runsDir, Store: store}}

	okDir := filepath.Join(runsDir, "ok-run")
	_, err := store.Create(okDir, manifest.CreateOptions{InstanceID: "ok-run", WorkloadID: "w", WorkloadName: "w", StartedAt: time.Now(), CreatedBy: "test"})
	require.NoError(t, err)

	failDir := filepath.Join(runsDir, "fail-run")
	_, err = store.Create(failDir, manifest.CreateOptions{InstanceID: "fail-run", WorkloadID: "w", WorkloadName: "w", StartedAt: time.Now(), CreatedBy: "test"})
	require.NoError(t, err)
	require.NoError(t, store.MarkRunFailed(failDir, assertError("boom")))

	req := httptest.NewRequest(http.MethodDelete, "/runs", nil)
	rec := httptest.NewRecorder()
	h.handlePurgeFailed(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"purged":1`)

	_, err = store.Read(okDir)
	assert.NoError(t, err)
	_, err = store.Read(failDir)
	assert.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
