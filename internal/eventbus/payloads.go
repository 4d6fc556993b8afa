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

package eventbus

import "github.com/HemSoft/hs-conductor-sub000/internal/workload"

// Topic names for the required events (§5.2).
const (
	TopicPlanCreated     = "plan.created"
	TopicTaskReady       = "task.ready"
	TopicTaskCompleted   = "task.completed"
	TopicPlanCompleted   = "plan.completed"
	TopicWorkloadTrigger = "workload.trigger"
)

// PlanCreated is the plan.created payload: Executor → Orchestrator.
type PlanCreated struct {
	PlanID     string
	TemplateID string
	RunPath    string
	Steps      []PlanStep
	Input      map[string]any
	IsWorkflow bool
	// Alert is the workload's optional alert-on-output configuration
	// (§4.3.5), carried through so the orchestrator can attach it to the
	// task.ready for the AI worker's primary step.
	Alert *AlertTrigger
	// Permissions is the workload's optional static network/filesystem
	// allow-list (§3 [ADDED]), carried through so the orchestrator can
	// attach it to every task.ready regardless of which step it is —
	// EXEC and FETCH enforce it, every other worker ignores it.
	Permissions *workload.Permissions
}

// AlertTrigger is a workload's optional alert-on-output configuration
// (§4.3.5), attached to the task.ready event for the AI worker's primary
// step so it can evaluate Condition against its own result and, if it
// fires, persist an alert descriptor.
type AlertTrigger struct {
	Condition string
	Title     string
	Message   string
	Type      string
	Priority  string
}

// PlanStep is one step definition carried inside PlanCreated, enough for
// the orchestrator to compute the ready frontier without re-reading the
// workload definition.
type PlanStep struct {
	ID        string
	Name      string
	Worker    string
	Config    map[string]any
	Input     []string
	Output    string
	DependsOn []string
	Condition string
}

// TaskReady is the task.ready payload: Executor/Orchestrator → Workers.
type TaskReady struct {
	PlanID  string
	TaskID  string
	Worker  string
	Config  map[string]any
	Input   []string
	Output  string
	RunPath string
	// IsPrimary is computed by the orchestrator/executor before dispatch:
	// true iff the instance is a prompt workload or this step produces the
	// workload's final result (§4.3 step 4, "type = primary iff...").
	IsPrimary bool
	// Alert is set only on the task.ready for the AI worker's primary step,
	// carrying the workload's optional alert-on-output configuration
	// (§4.3.5) forward from PlanCreated/the prompt submission.
	Alert *AlertTrigger
	// Permissions is the workload's optional static network/filesystem
	// allow-list (§3 [ADDED]), enforced by the EXEC and FETCH workers and
	// ignored by every other worker.
	Permissions *workload.Permissions
}

// TaskCompleted is the task.completed payload: Workers → Orchestrator.
type TaskCompleted struct {
	PlanID  string
	TaskID  string
	Output  string
	RunPath string
}

// PlanCompleted is the plan.completed payload, terminal.
type PlanCompleted struct {
	PlanID  string
	RunPath string
}

// WorkloadTrigger is the workload.trigger payload: Scheduler → trigger
// handler.
type WorkloadTrigger struct {
	ScheduleID   string
	ScheduleName string
	WorkloadID   string
	Params       map[string]any
}
