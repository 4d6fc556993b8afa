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

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// folderHandlers provides directory CRUD over the workloads personal
// root, the thin filesystem layer the GUI's folder tree sits on
// (spec.md §6.2 folder rows).
type folderHandlers struct {
	svc WorkloadService
}

func (h *folderHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	root := h.svc.PersonalRoot()
	var folders []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil {
			folders = append(folders, rel)
		}
		return nil
	})
	writeJSON(w, http.StatusOK, folders)
}

func (h *folderHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dir, err := sanitizedFolderPath(h.svc.PersonalRoot(), body.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *folderHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	folder := r.PathValue("path")
	dir, err := sanitizedFolderPath(h.svc.PersonalRoot(), folder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "folder", ID: folder})
		return
	}
	if len(entries) > 0 {
		writeError(w, http.StatusConflict, &conductorerrors.ConflictError{Resource: "folder", ID: folder})
		return
	}
	if err := os.Remove(dir); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
