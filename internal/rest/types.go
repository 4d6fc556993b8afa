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

	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
	"github.com/HemSoft/hs-conductor-sub000/internal/scheduler"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

// WorkloadService is the subset of *workload.Loader the façade depends on.
// Satisfied directly by *workload.Loader; narrowed to an interface here so
// handler tests can fake it.
type WorkloadService interface {
	Get(id string) *workload.Definition
	List() []*workload.Definition
	PathOf(id string) string
	Errors() []workload.FileError
	Reload() error
	PersonalRoot() string
}

// RunService is the subset of *executor.Executor the façade depends on.
type RunService interface {
	Submit(ctx context.Context, def *workload.Definition, input map[string]any) (string, error)
}

// RunsRoot is the subset of *manifest.Store plus the run directory root
// the façade needs to enumerate and read run history.
type RunsRoot struct {
	Dir   string
	Store *manifest.Store
}

// ScheduleService is the subset of scheduler collaborators the façade
// depends on.
type ScheduleService struct {
	Records   *scheduler.RecordStore
	Scheduler *scheduler.Scheduler
}
