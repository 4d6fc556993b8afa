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

// Package rest implements the REST façade (§6.2): CRUD over workloads,
// runs, schedules, and folders, fronting the Executor and the workload
// Loader for an external GUI. Grounded on the teacher's
// internal/daemon/endpoint.Handler (route registration via
// net/http.ServeMux's method-and-path patterns, JSON response helpers)
// narrowed to this engine's resource set.
package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HemSoft/hs-conductor-sub000/internal/auth"
	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductor_rest_requests_total",
			Help: "Total REST requests by method, route, and status class",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "conductor_rest_request_duration_seconds",
			Help: "REST request duration in seconds",
		},
		[]string{"method", "route"},
	)
)

// Server wires the REST façade's HTTP handler.
type Server struct {
	mux        *http.ServeMux
	corsOrigin string
	authConfig auth.Config
	limiter    *ipRateLimiter
	logger     *slog.Logger

	workloads *workloadHandlers
	folders   *folderHandlers
	runs      *runHandlers
	schedules *scheduleHandlers
}

// Deps bundles the Server's collaborators.
type Deps struct {
	Workloads  WorkloadService
	Executor   RunService
	Runs       RunsRoot
	Schedules  ScheduleService
	CORSOrigin string
	Auth       auth.Config
	Logger     *slog.Logger
}

// New constructs a Server and registers every route.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		mux:        http.NewServeMux(),
		corsOrigin: deps.CORSOrigin,
		authConfig: deps.Auth,
		limiter:    newIPRateLimiter(20, 40),
		logger:     clog.WithComponent(deps.Logger, "rest"),
		workloads:  &workloadHandlers{svc: deps.Workloads},
		folders:    &folderHandlers{svc: deps.Workloads},
		runs:       &runHandlers{exec: deps.Executor, root: deps.Runs, workload: deps.Workloads},
		schedules:  &scheduleHandlers{svc: deps.Schedules},
	}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.wrapped().ServeHTTP(w, r)
}

func (s *Server) wrapped() http.Handler {
	var h http.Handler = s.mux
	h = s.withMetrics(h)
	h = s.withAuth(h)
	h = s.withRateLimit(h)
	h = s.withCORS(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /reload", s.workloads.handleReload)

	s.mux.HandleFunc("GET /workloads", s.workloads.handleList)
	s.mux.HandleFunc("GET /workloads/errors", s.workloads.handleErrors)
	s.mux.HandleFunc("GET /workloads/{id}", s.workloads.handleGet)
	s.mux.HandleFunc("POST /workloads/{id}/validate", s.workloads.handleValidate)
	s.mux.HandleFunc("POST /workloads", s.workloads.handleCreate)
	s.mux.HandleFunc("PUT /workloads/{id}", s.workloads.handleUpdate)
	s.mux.HandleFunc("DELETE /workloads/{id}", s.workloads.handleDelete)
	s.mux.HandleFunc("POST /workloads/{id}/move", s.workloads.handleMove)

	s.mux.HandleFunc("GET /folders", s.folders.handleList)
	s.mux.HandleFunc("POST /folders", s.folders.handleCreate)
	s.mux.HandleFunc("DELETE /folders/{path}", s.folders.handleDelete)

	s.mux.HandleFunc("POST /run/{id}", s.runs.handleRun)
	s.mux.HandleFunc("GET /runs", s.runs.handleList)
	s.mux.HandleFunc("GET /runs/{id}", s.runs.handleGet)
	s.mux.HandleFunc("GET /runs/{id}/file/{name}", s.runs.handleFile)
	s.mux.HandleFunc("DELETE /runs/{id}", s.runs.handleDelete)
	s.mux.HandleFunc("DELETE /runs", s.runs.handlePurgeFailed)

	s.mux.HandleFunc("GET /schedules", s.schedules.handleList)
	s.mux.HandleFunc("GET /schedules/upcoming", s.schedules.handleUpcoming)
	s.mux.HandleFunc("POST /schedules", s.schedules.handleCreate)
	s.mux.HandleFunc("DELETE /schedules/{id}", s.schedules.handleDelete)
	s.mux.HandleFunc("PATCH /schedules/{id}/toggle", s.schedules.handleToggle)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.authConfig.Disabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if _, err := auth.ValidateToken(token, s.authConfig); err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Details: err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		requestsTotal.WithLabelValues(r.Method, route, statusClass(rec.status)).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
