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

// Package orchestrator implements the Plan Orchestrator (§4.4): the
// event-driven state machine that walks a step workload's DAG to
// completion. It subscribes to plan.created and task.completed, computes
// the ready frontier after every completed step, interpolates each
// step's config before dispatch, evaluates optional step conditions, and
// abandons the plan if a step fails.
//
// Unlike the teacher's pkg/workflow.Executor, which recurses synchronously
// over a parsed tree, the orchestrator here never calls a step's worker
// directly: it only ever reacts to events, so a single plan's progress is
// indistinguishable from the aggregate progress of many concurrent plans
// sharing the same bus and worker pool (design note §9).
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

// DefaultTaskTimeout bounds how long the orchestrator waits for a
// dispatched step's task.completed before consulting the manifest and
// abandoning the plan. It should exceed every worker's own retry budget
// (§5.3); workers that need longer should configure a larger value via
// New.
const DefaultTaskTimeout = 2 * time.Minute

// Orchestrator reacts to plan.created and task.completed, dispatching
// task.ready for every step on the DAG's ready frontier.
type Orchestrator struct {
	bus         *eventbus.Bus
	store       *manifest.Store
	taskTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	plans map[string]*planState // keyed by PlanID (== run directory, §9 Open Question)
}

// New constructs an Orchestrator. A zero taskTimeout falls back to
// DefaultTaskTimeout; a nil logger falls back to slog.Default().
func New(bus *eventbus.Bus, store *manifest.Store, taskTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		bus:         bus,
		store:       store,
		taskTimeout: taskTimeout,
		logger:      clog.WithComponent(logger, "orchestrator"),
		plans:       make(map[string]*planState),
	}
}

// Start registers the orchestrator's subscriptions. Must be called once
// before any plan.created events are published; the bus does not replay.
func (o *Orchestrator) Start() {
	opts := eventbus.DefaultSubscribeOptions()
	opts.Concurrency = 8
	o.bus.Subscribe(eventbus.TopicPlanCreated, o.handlePlanCreated, opts)
	o.bus.Subscribe(eventbus.TopicTaskCompleted, o.handleTaskCompleted, opts)
}

func (o *Orchestrator) handlePlanCreated(ctx context.Context, ev eventbus.Event) error {
	pc, ok := ev.Payload.(eventbus.PlanCreated)
	if !ok {
		return nil
	}
	state := newPlanState(pc)

	o.mu.Lock()
	if _, exists := o.plans[pc.PlanID]; exists {
		o.mu.Unlock()
		return nil // duplicate plan.created delivery, already tracked
	}
	o.plans[pc.PlanID] = state
	o.mu.Unlock()

	if err := o.store.MarkRunStarted(pc.RunPath); err != nil {
		o.logger.Warn("mark run started failed", "plan_id", pc.PlanID, "error", err)
	}

	o.dispatchReady(ctx, state)
	return nil
}

func (o *Orchestrator) handleTaskCompleted(ctx context.Context, ev eventbus.Event) error {
	tc, ok := ev.Payload.(eventbus.TaskCompleted)
	if !ok {
		return nil
	}

	o.mu.Lock()
	state, exists := o.plans[tc.PlanID]
	o.mu.Unlock()
	if !exists {
		// Restart case: the orchestrator lost its in-memory cache but the
		// manifest already reflects the completion; nothing further to do
		// until Recover repopulates the plan.
		return nil
	}

	state.mu.Lock()
	if state.completed[tc.TaskID] {
		state.mu.Unlock()
		return nil // duplicate task.completed for the same (planId, taskId), tolerated
	}
	state.completed[tc.TaskID] = true
	state.cancelTimeout(tc.TaskID)
	state.mu.Unlock()

	if state.allDone() {
		o.finishPlan(ctx, state)
		return nil
	}

	o.dispatchReady(ctx, state)
	return nil
}

// dispatchReady computes the ready frontier and emits task.ready for every
// member, skipping (and marking complete) any whose condition evaluates
// false.
func (o *Orchestrator) dispatchReady(ctx context.Context, state *planState) {
	for _, step := range state.readyFrontier() {
		ok, err := evaluateCondition(step.Condition, state.input)
		if err != nil {
			o.logger.Warn("condition evaluation failed, treating as false", "plan_id", state.planID, "step_id", step.ID, "error", err)
			ok = false
		}
		if !ok {
			o.skipStep(ctx, state, step)
			continue
		}
		o.dispatchStep(ctx, state, step)
	}

	if state.allDone() {
		o.finishPlan(ctx, state)
	}
}

func (o *Orchestrator) dispatchStep(ctx context.Context, state *planState, step eventbus.PlanStep) {
	state.mu.Lock()
	if state.dispatched[step.ID] {
		state.mu.Unlock()
		return
	}
	state.dispatched[step.ID] = true
	state.mu.Unlock()

	if err := o.store.UpdateStep(state.runPath, step.ID, manifest.StepRunning, nil); err != nil {
		o.logger.Warn("update step running failed", "plan_id", state.planID, "step_id", step.ID, "error", err)
	}

	o.armTimeout(state, step.ID)

	cfg := interpolateConfig(step.Config, state.input)
	isPrimary := step.ID == state.finalStepID
	var alert *eventbus.AlertTrigger
	if isPrimary && step.Worker == workload.WorkerAI {
		alert = state.alert
	}
	_, err := o.bus.Publish(ctx, eventbus.TopicTaskReady, eventbus.TaskReady{
		PlanID:      state.planID,
		TaskID:      step.ID,
		Worker:      step.Worker,
		Config:      cfg,
		Input:       step.Input,
		Output:      step.Output,
		RunPath:     state.runPath,
		IsPrimary:   isPrimary,
		Alert:       alert,
		Permissions: state.permissions,
	})
	if err != nil {
		o.logger.Error("publish task.ready failed", "plan_id", state.planID, "step_id", step.ID, "error", err)
	}
}

func (o *Orchestrator) skipStep(ctx context.Context, state *planState, step eventbus.PlanStep) {
	state.mu.Lock()
	if state.dispatched[step.ID] {
		state.mu.Unlock()
		return
	}
	state.dispatched[step.ID] = true
	state.completed[step.ID] = true
	state.mu.Unlock()

	if err := o.store.UpdateStep(state.runPath, step.ID, manifest.StepSkipped, nil); err != nil {
		o.logger.Warn("update step skipped failed", "plan_id", state.planID, "step_id", step.ID, "error", err)
	}

	if state.allDone() {
		o.finishPlan(ctx, state)
	}
}

func (o *Orchestrator) finishPlan(ctx context.Context, state *planState) {
	state.mu.Lock()
	if state.finished {
		state.mu.Unlock()
		return
	}
	state.finished = true
	state.mu.Unlock()

	if err := o.store.MarkRunCompleted(state.runPath); err != nil {
		o.logger.Warn("mark run completed failed", "plan_id", state.planID, "error", err)
	}
	if _, err := o.bus.Publish(ctx, eventbus.TopicPlanCompleted, eventbus.PlanCompleted{
		PlanID:  state.planID,
		RunPath: state.runPath,
	}); err != nil {
		o.logger.Error("publish plan.completed failed", "plan_id", state.planID, "error", err)
	}

	o.mu.Lock()
	delete(o.plans, state.planID)
	o.mu.Unlock()
}

// abandon marks the run failed and stops dispatching further steps. Called
// when a dispatched step's task.completed never arrives within
// taskTimeout and the manifest confirms the step failed.
func (o *Orchestrator) abandon(state *planState, stepID string, cause error) {
	state.mu.Lock()
	if state.finished {
		state.mu.Unlock()
		return
	}
	state.finished = true
	state.mu.Unlock()

	if err := o.store.MarkRunFailed(state.runPath, cause); err != nil {
		o.logger.Warn("mark run failed failed", "plan_id", state.planID, "error", err)
	}
	o.logger.Error("plan abandoned after step failure", "plan_id", state.planID, "step_id", stepID, "error", cause)

	o.mu.Lock()
	delete(o.plans, state.planID)
	o.mu.Unlock()
}

// Recover re-seeds in-memory plan state for a run that was still "running"
// when the process last stopped (§4.4 "reconstructible on restart"). The
// caller (daemon startup) supplies the original step definitions from the
// workload definition; completedIds is reconstructed from the manifest's
// current step statuses so already-finished steps are not re-dispatched.
func (o *Orchestrator) Recover(ctx context.Context, planID, runPath string, steps []eventbus.PlanStep, input map[string]any, alert *eventbus.AlertTrigger, permissions *workload.Permissions) error {
	m, err := o.store.Read(runPath)
	if err != nil {
		return err
	}
	if m.Status == manifest.StatusCompleted || m.Status == manifest.StatusFailed {
		return nil // terminal already, nothing to resume
	}

	pc := eventbus.PlanCreated{PlanID: planID, RunPath: runPath, Steps: steps, Input: input, Alert: alert, Permissions: permissions}
	state := newPlanState(pc)
	for _, sr := range m.Steps {
		if sr.Status == manifest.StepCompleted || sr.Status == manifest.StepSkipped {
			state.completed[sr.ID] = true
			state.dispatched[sr.ID] = true
		}
		if sr.Status == manifest.StepFailed {
			// A failed step with no recorded plan failure means the daemon
			// crashed between the worker's UpdateStep(failed) and the
			// orchestrator noticing; finish the abandonment now.
			o.abandon(state, sr.ID, &recoveredStepFailure{StepID: sr.ID})
			return nil
		}
	}

	o.mu.Lock()
	o.plans[planID] = state
	o.mu.Unlock()

	o.dispatchReady(ctx, state)
	return nil
}

type recoveredStepFailure struct{ StepID string }

func (e *recoveredStepFailure) Error() string {
	return "step " + e.StepID + " was already failed in the manifest at restart"
}
