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
	"encoding/json"
	"log/slog"
	"net/http"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// decodeJSON decodes the request body into v, rejecting unknown fields so
// client typos surface as 400s instead of silently-ignored data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON writes a JSON response with the given status code and data,
// grounded on the teacher's daemon/httputil.WriteJSON.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// errorBody is the {error, details?} shape spec.md §6.2 requires for
// every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusForError maps a typed error kind (pkg/errors) to its HTTP status,
// defaulting to 500 for anything uncategorized (§7 Error handling design).
func statusForError(err error) int {
	switch {
	case asValidation(err):
		return http.StatusBadRequest
	case asNotFound(err):
		return http.StatusNotFound
	case asConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func asValidation(err error) bool {
	var e *conductorerrors.ValidationError
	return asTarget(err, &e)
}

func asNotFound(err error) bool {
	var e *conductorerrors.NotFoundError
	return asTarget(err, &e)
}

func asConflict(err error) bool {
	var e *conductorerrors.ConflictError
	return asTarget(err, &e)
}
