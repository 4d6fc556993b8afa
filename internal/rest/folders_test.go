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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderHandlers_CreateListDelete(t *testing.T) {
	svc := newFakeWorkloadService(t)
	h := &folderHandlers{svc: svc}

	req := httptest.NewRequest(http.MethodPost, "/folders", strings.NewReader(`{"path":"reports/weekly"}`))
	rec := httptest.NewRecorder()
	h.handleCreate(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/folders", nil)
	rec = httptest.NewRecorder()
	h.handleList(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "weekly")

	req = httptest.NewRequest(http.MethodDelete, "/folders/reports/weekly", nil)
	req.SetPathValue("path", "reports/weekly")
	rec = httptest.NewRecorder()
	h.handleDelete(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFolderHandlers_DeleteRejectsEscape(t *testing.T) {
	svc := newFakeWorkloadService(t)
	h := &folderHandlers{svc: svc}

	req := httptest.NewRequest(http.MethodDelete, "/folders/..", nil)
	req.SetPathValue("path", "..")
	rec := httptest.NewRecorder()
	h.handleDelete(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
