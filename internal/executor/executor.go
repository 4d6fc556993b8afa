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

// Package executor implements the Executor façade (§3, §4.4): the single
// entry point that turns a (workload id, inputs) pair into a running
// instance. It allocates the instance id and run directory, writes the
// initial manifest, and publishes exactly one plan.created (step
// workload) or task.ready (prompt workload) onto the event bus, then gets
// out of the way -- all further progress is driven by the orchestrator
// and workers reacting to that one event.
//
// Grounded on the teacher's internal/daemon/runner.Runner.Submit, which
// plays the same allocate-then-hand-off role for a workflow.Definition;
// narrowed here since this engine's "run" is the manifest file, not an
// in-memory Run struct the façade must keep mutating.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// Executor allocates instances and hands them off to the bus.
type Executor struct {
	runsRoot string
	store    *manifest.Store
	bus      *eventbus.Bus
	now      func() time.Time
}

// New constructs an Executor. runsRoot is `<data>/runs`.
func New(runsRoot string, store *manifest.Store, bus *eventbus.Bus) *Executor {
	return &Executor{runsRoot: runsRoot, store: store, bus: bus, now: time.Now}
}

// Submit allocates an instance for def with the given inputs, writes the
// initial manifest, and publishes the appropriate bus event. It returns
// the new instance id.
func (e *Executor) Submit(ctx context.Context, def *workload.Definition, input map[string]any) (string, error) {
	at := e.now()
	instanceID := manifest.NewInstanceID(def.ID, at)
	runPath := filepath.Join(e.runsRoot, instanceID)

	switch {
	case def.IsPromptShape():
		return instanceID, e.submitPrompt(ctx, def, input, instanceID, runPath, at)
	case def.IsStepShape():
		return instanceID, e.submitSteps(ctx, def, input, instanceID, runPath, at)
	default:
		return "", &conductorerrors.ValidationError{
			Field:      "workload",
			Message:    fmt.Sprintf("workload %s has neither a prompt nor steps", def.ID),
			Suggestion: "a workload definition must set exactly one of prompt or steps",
		}
	}
}

func (e *Executor) submitPrompt(ctx context.Context, def *workload.Definition, input map[string]any, instanceID, runPath string, at time.Time) error {
	resultFile := "result." + promptResultExtension(def.Output)

	_, err := e.store.Create(runPath, manifest.CreateOptions{
		InstanceID: instanceID, WorkloadID: def.ID, WorkloadName: def.Name,
		Input: input, StartedAt: at, CreatedBy: "executor",
		PromptResultFile: resultFile,
	})
	if err != nil {
		return err
	}

	cfg := map[string]any{"prompt": interpolatePrompt(def.Prompt, input)}
	if def.Model != "" {
		cfg["model"] = def.Model
	}
	if def.Output != nil {
		cfg["outputFormat"] = def.Output.Format
	}

	_, err = e.bus.Publish(ctx, eventbus.TopicTaskReady, eventbus.TaskReady{
		PlanID:      runPath,
		TaskID:      "prompt",
		Worker:      workload.WorkerAI,
		Config:      cfg,
		Output:      resultFile,
		RunPath:     runPath,
		IsPrimary:   true,
		Alert:       alertTrigger(def),
		Permissions: def.Permissions,
	})
	return err
}

func (e *Executor) submitSteps(ctx context.Context, def *workload.Definition, input map[string]any, instanceID, runPath string, at time.Time) error {
	seeds := make([]manifest.StepSeed, len(def.Steps))
	planSteps := make([]eventbus.PlanStep, len(def.Steps))
	for i, step := range def.Steps {
		seeds[i] = manifest.StepSeed{ID: step.ID, Name: step.Name, Worker: step.Worker, Output: step.Output}
		planSteps[i] = eventbus.PlanStep{
			ID: step.ID, Name: step.Name, Worker: step.Worker, Config: step.Config,
			Input: step.Input, Output: step.Output, DependsOn: step.DependsOn, Condition: step.Condition,
		}
	}

	_, err := e.store.Create(runPath, manifest.CreateOptions{
		InstanceID: instanceID, WorkloadID: def.ID, WorkloadName: def.Name,
		Input: input, StartedAt: at, CreatedBy: "executor",
		Steps: seeds, PrimaryOutput: primaryOutputFile(def),
	})
	if err != nil {
		return err
	}

	_, err = e.bus.Publish(ctx, eventbus.TopicPlanCreated, eventbus.PlanCreated{
		PlanID: runPath, RunPath: runPath, Steps: planSteps, Input: input, IsWorkflow: true,
		Alert: alertTrigger(def), Permissions: def.Permissions,
	})
	return err
}

// alertTrigger converts a workload's optional alert configuration into the
// bus payload shape, or nil if the workload declares none.
func alertTrigger(def *workload.Definition) *eventbus.AlertTrigger {
	if def.Alert == nil {
		return nil
	}
	return &eventbus.AlertTrigger{
		Condition: def.Alert.Condition,
		Title:     def.Alert.Title,
		Message:   def.Alert.Message,
		Type:      def.Alert.Type,
		Priority:  def.Alert.Priority,
	}
}

func primaryOutputFile(def *workload.Definition) string {
	final := def.StepByID(def.FinalStepID())
	if final == nil {
		return ""
	}
	return final.Output
}

func promptResultExtension(out *workload.OutputConfig) string {
	if out == nil {
		return "txt"
	}
	switch out.Format {
	case workload.OutputJSON:
		return "json"
	case workload.OutputMarkdown:
		return "md"
	default:
		return "txt"
	}
}

var promptParamPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// interpolatePrompt applies the same {{param}} substitution the
// orchestrator applies to step config (internal/orchestrator/interpolate.go),
// duplicated narrowly here since a prompt workload's single task.ready is
// emitted by the façade, never by the orchestrator.
func interpolatePrompt(prompt string, input map[string]any) string {
	return promptParamPattern.ReplaceAllStringFunc(prompt, func(match string) string {
		name := promptParamPattern.FindStringSubmatch(match)[1]
		val, ok := input[name]
		if !ok {
			return match
		}
		return fmt.Sprintf("%v", val)
	})
}
