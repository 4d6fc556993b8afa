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
	"os"
	"path/filepath"
	"sort"
	"strings"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"

	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
)

type runHandlers struct {
	exec     RunService
	root     RunsRoot
	workload WorkloadService
}

// runListItem is one GET /runs row. manifest.Store exposes no listing
// method of its own (it only ever reads one run directory at a time, §3
// "read-modify-write of the whole file") so the façade enumerates
// runsRoot itself and falls back to DerivedStatus for any directory
// caught mid-write or left over from a crash before its first manifest
// flush.
type runListItem struct {
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
	Derived    bool   `json:"derived,omitempty"`
}

func (h *runHandlers) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	def := h.workload.Get(id)
	if def == nil {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "workload", ID: id})
		return
	}
	var input map[string]any
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	instanceID, err := h.exec.Submit(r.Context(), def, input)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"instanceId": instanceID,
		"status":     manifest.StatusPending,
	})
}

func (h *runHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.root.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []runListItem{})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]runListItem, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(h.root.Dir, e.Name())
		item := runListItem{InstanceID: e.Name()}
		if m, err := h.root.Store.Read(runDir); err == nil {
			item.Status = m.Status
		} else {
			info, statErr := e.Info()
			modTime := info.ModTime()
			if statErr != nil {
				continue
			}
			status, derivedErr := manifest.DerivedStatus(runDir, modTime)
			if derivedErr != nil {
				continue
			}
			item.Status = status
			item.Derived = true
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID > out[j].InstanceID })
	writeJSON(w, http.StatusOK, out)
}

func (h *runHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runDir, err := h.runDir(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := h.root.Store.Read(runDir)
	if err != nil {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "run", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *runHandlers) handleFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := r.PathValue("name")
	runDir, err := h.runDir(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, &conductorerrors.ValidationError{Field: "name", Message: "invalid file name"})
		return
	}
	http.ServeFile(w, r, filepath.Join(runDir, name))
}

func (h *runHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	runDir, err := h.runDir(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := os.RemoveAll(runDir); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePurgeFailed implements the bulk "DELETE /runs" row (§6.2): remove
// every run directory whose manifest status is failed.
func (h *runHandlers) handlePurgeFailed(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.root.Dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	purged := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(h.root.Dir, e.Name())
		m, err := h.root.Store.Read(runDir)
		if err != nil || m.Status != manifest.StatusFailed {
			continue
		}
		if err := os.RemoveAll(runDir); err == nil {
			purged++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// runDir resolves an instance id to its directory, rejecting anything
// that would escape runsRoot.
func (h *runHandlers) runDir(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", &conductorerrors.ValidationError{Field: "id", Message: "invalid run id"}
	}
	return filepath.Join(h.root.Dir, id), nil
}
