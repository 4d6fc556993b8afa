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

package orchestrator

import (
	"sync"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

// planState is the orchestrator's in-memory cache for one active plan. It
// is a cache, not the source of truth: the manifest can always rebuild it
// (see Orchestrator.Recover), so losing it on a crash loses no durable
// state, only dispatch progress that Recover replays.
type planState struct {
	mu sync.Mutex

	planID      string
	runPath     string
	input       map[string]any
	steps       []eventbus.PlanStep
	byID        map[string]eventbus.PlanStep
	finalStepID string
	alert       *eventbus.AlertTrigger
	permissions *workload.Permissions

	completed  map[string]bool
	dispatched map[string]bool
	finished   bool

	timers map[string]*time.Timer
}

func newPlanState(pc eventbus.PlanCreated) *planState {
	s := &planState{
		planID:      pc.PlanID,
		runPath:     pc.RunPath,
		input:       pc.Input,
		steps:       pc.Steps,
		alert:       pc.Alert,
		permissions: pc.Permissions,
		byID:        make(map[string]eventbus.PlanStep, len(pc.Steps)),
		completed:   make(map[string]bool),
		dispatched:  make(map[string]bool),
		timers:      make(map[string]*time.Timer),
	}
	for _, step := range pc.Steps {
		s.byID[step.ID] = step
	}
	s.finalStepID = finalStepID(pc.Steps)
	return s
}

// finalStepID returns the id of the step nothing else depends on, matching
// workload.Definition.FinalStepID's tie-break (ties broken by definition
// order, last such step wins) but operating on the PlanStep slice carried
// by plan.created rather than re-reading the workload definition.
func finalStepID(steps []eventbus.PlanStep) string {
	hasDescendant := make(map[string]bool, len(steps))
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			hasDescendant[dep] = true
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if !hasDescendant[steps[i].ID] {
			return steps[i].ID
		}
	}
	if len(steps) > 0 {
		return steps[len(steps)-1].ID
	}
	return ""
}

// readyFrontier returns every step that is not yet completed, whose
// dependsOn ids are all completed, and whose input[] filenames are all
// produced by an already-completed step, in definition order. Steps
// already dispatched (running or skipped) are excluded.
func (s *planState) readyFrontier() []eventbus.PlanStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	outputOwner := make(map[string]string, len(s.steps))
	for _, step := range s.steps {
		if step.Output != "" {
			outputOwner[step.Output] = step.ID
		}
	}

	var ready []eventbus.PlanStep
	for _, step := range s.steps {
		if s.completed[step.ID] || s.dispatched[step.ID] {
			continue
		}
		if !s.dependsSatisfied(step) {
			continue
		}
		if !s.inputsSatisfied(step, outputOwner) {
			continue
		}
		ready = append(ready, step)
	}
	return ready
}

func (s *planState) dependsSatisfied(step eventbus.PlanStep) bool {
	for _, dep := range step.DependsOn {
		if !s.completed[dep] {
			return false
		}
	}
	return true
}

func (s *planState) inputsSatisfied(step eventbus.PlanStep, outputOwner map[string]string) bool {
	for _, file := range step.Input {
		owner, ok := outputOwner[file]
		if !ok {
			continue // not produced by any step in this plan (e.g. a seed file); nothing to wait on
		}
		if !s.completed[owner] {
			return false
		}
	}
	return true
}

// allDone reports whether every step has reached a terminal state
// (completed or skipped).
func (s *planState) allDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.completed) < len(s.steps) {
		return false
	}
	for _, step := range s.steps {
		if !s.completed[step.ID] {
			return false
		}
	}
	return true
}

// cancelTimeout stops and forgets the abandonment timer for taskID, if
// one is armed. Callers must hold s.mu.
func (s *planState) cancelTimeout(taskID string) {
	if t, ok := s.timers[taskID]; ok {
		t.Stop()
		delete(s.timers, taskID)
	}
}
