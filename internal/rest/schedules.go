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
	"time"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"

	"github.com/HemSoft/hs-conductor-sub000/internal/scheduler"
)

type scheduleHandlers struct {
	svc ScheduleService
}

func (h *scheduleHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Records.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *scheduleHandlers) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	upcoming, err := h.svc.Scheduler.Upcoming(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, upcoming)
}

func (h *scheduleHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec scheduler.Record
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if rec.ID == "" {
		writeError(w, http.StatusBadRequest, &conductorerrors.ValidationError{Field: "id", Message: "schedule id is required"})
		return
	}
	if rec.MissedExecutionPolicy == "" {
		rec.MissedExecutionPolicy = scheduler.PolicyLog
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := h.svc.Records.Save(&rec); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *scheduleHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.Records.Delete(id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *scheduleHandlers) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.Records.SetEnabled(id, body.Enabled); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
