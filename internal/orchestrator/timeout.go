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
	"fmt"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
)

// armTimeout starts the per-step abandonment timer. The orchestrator is
// never told directly that a step failed (a failed worker never emits
// task.completed, §4.3); absence of that event within taskTimeout is the
// failure signal, per §4.4: "The orchestrator treats absence of a
// completion event within the worker's retry budget as a failure of that
// step."
func (o *Orchestrator) armTimeout(state *planState, stepID string) {
	timer := time.AfterFunc(o.taskTimeout, func() {
		o.onTimeout(state, stepID)
	})

	state.mu.Lock()
	state.timers[stepID] = timer
	state.mu.Unlock()
}

// onTimeout fires when a dispatched step's task.completed never arrived.
// It consults the manifest for ground truth before abandoning: a step the
// worker marked failed abandons the plan with the worker's recorded error,
// a step already marked completed is left alone (its task.completed is in
// flight), and any other status, including a step still being retried by
// its worker, abandons the plan with a timeout error.
func (o *Orchestrator) onTimeout(state *planState, stepID string) {
	state.mu.Lock()
	if state.completed[stepID] || state.finished {
		state.mu.Unlock()
		return
	}
	delete(state.timers, stepID)
	state.mu.Unlock()

	m, err := o.store.Read(state.runPath)
	if err != nil {
		o.logger.Warn("timeout recovery: read manifest failed", "plan_id", state.planID, "step_id", stepID, "error", err)
		return
	}

	for _, sr := range m.Steps {
		if sr.ID != stepID {
			continue
		}
		if sr.Status == manifest.StepFailed {
			o.abandon(state, stepID, fmt.Errorf("step %s failed: %s", stepID, sr.Error))
			return
		}
		if sr.Status == manifest.StepCompleted {
			return // task.completed is in flight; handleTaskCompleted will catch up
		}
	}

	o.abandon(state, stepID, fmt.Errorf("step %s did not complete within %s", stepID, o.taskTimeout))
}
