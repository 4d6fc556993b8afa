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
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"

	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

type workloadHandlers struct {
	svc WorkloadService
}

// workloadSummary is the list-view shape: id, name, description, tags and
// shape. It carries no folder path and no validation errors or warnings.
type workloadSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Shape       string   `json:"shape"`
}

func (h *workloadHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	defs := h.svc.List()
	out := make([]workloadSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, toSummary(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func toSummary(d *workload.Definition) workloadSummary {
	shape := "steps"
	if d.IsPromptShape() {
		shape = "prompt"
	}
	return workloadSummary{
		ID: d.ID, Name: d.Name, Description: d.Description, Tags: d.Tags, Shape: shape,
	}
}

func (h *workloadHandlers) handleErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Errors())
}

func (h *workloadHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	def := h.svc.Get(id)
	if def == nil {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "workload", ID: id})
		return
	}
	raw, err := workload.Serialize(def)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"definition": def,
		"yaml":       string(raw),
	})
}

func (h *workloadHandlers) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	def, err := workload.ParseDefinition(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	if err := def.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (h *workloadHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	def, err := workload.ParseDefinition(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := def.Validate(); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	if h.svc.Get(def.ID) != nil {
		writeError(w, http.StatusConflict, &conductorerrors.ConflictError{Resource: "workload", ID: def.ID})
		return
	}
	path, err := sanitizedWorkloadPath(h.svc.PersonalRoot(), def.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.svc.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSummary(def))
}

func (h *workloadHandlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existingPath := h.svc.PathOf(id)
	if existingPath == "" {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "workload", ID: id})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	def, err := workload.ParseDefinition(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := def.Validate(); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	if def.ID != id {
		writeError(w, http.StatusBadRequest, &conductorerrors.ValidationError{
			Field: "id", Message: "workload id cannot change on update",
		})
		return
	}
	if err := os.WriteFile(existingPath, body, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.svc.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(def))
}

func (h *workloadHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := h.svc.PathOf(id)
	if path == "" {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "workload", ID: id})
		return
	}
	if err := os.Remove(path); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.svc.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workloadHandlers) handleMove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	srcPath := h.svc.PathOf(id)
	if srcPath == "" {
		writeError(w, http.StatusNotFound, &conductorerrors.NotFoundError{Resource: "workload", ID: id})
		return
	}
	var body struct {
		Folder string `json:"folder"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	destDir, err := sanitizedFolderPath(h.svc.PersonalRoot(), body.Folder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	dest := filepath.Join(destDir, filepath.Base(srcPath))
	if err := os.Rename(srcPath, dest); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.svc.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workloadHandlers) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true, "errors": h.svc.Errors()})
}

// sanitizedWorkloadPath builds the file path for a new workload id under
// root, rejecting any id that would escape root (path traversal guard,
// §7 Error handling design).
func sanitizedWorkloadPath(root, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", &conductorerrors.ValidationError{Field: "id", Message: "workload id must not contain path separators"}
	}
	return filepath.Join(root, id+".yaml"), nil
}

func sanitizedFolderPath(root, folder string) (string, error) {
	clean := filepath.Clean(strings.TrimPrefix(folder, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &conductorerrors.ValidationError{Field: "folder", Message: "folder escapes workloads root"}
	}
	joined := filepath.Join(root, clean)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", &conductorerrors.ValidationError{Field: "folder", Message: "folder escapes workloads root"}
	}
	return joined, nil
}
