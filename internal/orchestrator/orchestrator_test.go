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
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
)

// newTestPlan seeds a manifest for the given steps and returns the run
// directory, the Store, and a ready-to-publish PlanCreated.
func newTestPlan(t *testing.T, planID string, steps []eventbus.PlanStep, input map[string]any) (string, *manifest.Store, eventbus.PlanCreated) {
	t.Helper()
	runDir := t.TempDir()
	store := manifest.NewStore()

	seeds := make([]manifest.StepSeed, len(steps))
	for i, s := range steps {
		seeds[i] = manifest.StepSeed{ID: s.ID, Name: s.Name, Worker: s.Worker, Output: s.Output}
	}
	_, err := store.Create(runDir, manifest.CreateOptions{
		InstanceID: planID, WorkloadID: "wf", WorkloadName: "wf",
		StartedAt: time.Now(), Steps: seeds, Input: input,
	})
	require.NoError(t, err)

	return runDir, store, eventbus.PlanCreated{
		PlanID: runDir, RunPath: runDir, Steps: steps, Input: input, IsWorkflow: true,
	}
}

// fakeWorker subscribes to task.ready and, for any step not configured to
// fail, immediately records success through the manifest and publishes
// task.completed -- standing in for internal/worker.Dispatcher so these
// tests exercise only the orchestrator's own event-driven logic.
type fakeWorker struct {
	bus     *eventbus.Bus
	store   *manifest.Store
	failIDs map[string]bool
	seen    []eventbus.TaskReady
	mu      sync.Mutex
}

func newFakeWorker(bus *eventbus.Bus, store *manifest.Store, failIDs ...string) *fakeWorker {
	fw := &fakeWorker{bus: bus, store: store, failIDs: make(map[string]bool)}
	for _, id := range failIDs {
		fw.failIDs[id] = true
	}
	bus.Subscribe(eventbus.TopicTaskReady, fw.handle, eventbus.DefaultSubscribeOptions())
	return fw
}

func (fw *fakeWorker) handle(ctx context.Context, ev eventbus.Event) error {
	tr := ev.Payload.(eventbus.TaskReady)
	fw.mu.Lock()
	fw.seen = append(fw.seen, tr)
	fw.mu.Unlock()

	if fw.failIDs[tr.TaskID] {
		_ = fw.store.UpdateStep(tr.RunPath, tr.TaskID, manifest.StepFailed, assertErr)
		return nil // no task.completed, matching the real worker contract on failure
	}

	_ = fw.store.UpdateStep(tr.RunPath, tr.TaskID, manifest.StepCompleted, nil)
	_ = fw.store.RecordOutput(tr.RunPath, manifest.OutputRecord{File: tr.Output, Step: tr.TaskID, Type: "intermediate", Format: "json"})
	_, err := fw.bus.Publish(ctx, eventbus.TopicTaskCompleted, eventbus.TaskCompleted{
		PlanID: tr.PlanID, TaskID: tr.TaskID, Output: tr.Output, RunPath: tr.RunPath,
	})
	return err
}

func (fw *fakeWorker) taskReadyFor(id string) (eventbus.TaskReady, bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, tr := range fw.seen {
		if tr.TaskID == id {
			return tr, true
		}
	}
	return eventbus.TaskReady{}, false
}

var assertErr = &stepError{"boom"}

type stepError struct{ msg string }

func (e *stepError) Error() string { return e.msg }

func TestOrchestrator_TwoStepSequential(t *testing.T) {
	steps := []eventbus.PlanStep{
		{ID: "fetch", Worker: "fetch", Output: "raw.json"},
		{ID: "summarize", Worker: "ai", Input: []string{"raw.json"}, Output: "result.json", DependsOn: []string{"fetch"}},
	}
	runDir, store, pc := newTestPlan(t, "p1", steps, nil)

	bus := eventbus.New(nil)
	newFakeWorker(bus, store)
	o := New(bus, store, time.Second, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()

	m, err := store.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusCompleted, m.Status)
	assert.Equal(t, manifest.StepCompleted, m.Steps[0].Status)
	assert.Equal(t, manifest.StepCompleted, m.Steps[1].Status)
}

func TestOrchestrator_ParallelStepsDispatchedBeforeDescendant(t *testing.T) {
	steps := []eventbus.PlanStep{
		{ID: "a", Worker: "fetch", Output: "a.json"},
		{ID: "b", Worker: "fetch", Output: "b.json"},
		{ID: "c", Worker: "ai", Input: []string{"a.json", "b.json"}, Output: "c.json", DependsOn: []string{"a", "b"}},
	}
	runDir, store, pc := newTestPlan(t, "p2", steps, nil)

	bus := eventbus.New(nil)
	fw := newFakeWorker(bus, store)
	o := New(bus, store, time.Second, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()

	_, sawA := fw.taskReadyFor("a")
	_, sawB := fw.taskReadyFor("b")
	_, sawC := fw.taskReadyFor("c")
	assert.True(t, sawA && sawB && sawC)

	m, err := store.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusCompleted, m.Status)
}

func TestOrchestrator_ConditionFalseSkipsStep(t *testing.T) {
	steps := []eventbus.PlanStep{
		{ID: "maybe", Worker: "alert", Output: "out.json", Condition: "input.enabled == true"},
	}
	runDir, store, pc := newTestPlan(t, "p3", steps, map[string]any{"enabled": false})

	bus := eventbus.New(nil)
	newFakeWorker(bus, store)
	o := New(bus, store, time.Second, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()

	m, err := store.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, manifest.StepSkipped, m.Steps[0].Status)
	assert.Equal(t, manifest.StatusCompleted, m.Status)
}

func TestOrchestrator_StepFailureAbandonsPlan(t *testing.T) {
	steps := []eventbus.PlanStep{
		{ID: "doomed", Worker: "exec", Output: "out.json"},
	}
	runDir, store, pc := newTestPlan(t, "p4", steps, nil)

	bus := eventbus.New(nil)
	newFakeWorker(bus, store, "doomed")
	o := New(bus, store, 30*time.Millisecond, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()
	time.Sleep(100 * time.Millisecond)

	m, err := store.Read(runDir)
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusFailed, m.Status)
	assert.Equal(t, manifest.StepFailed, m.Steps[0].Status)
}

func TestOrchestrator_DuplicateTaskCompletedTolerated(t *testing.T) {
	steps := []eventbus.PlanStep{{ID: "only", Worker: "fetch", Output: "out.json"}}
	runDir, store, pc := newTestPlan(t, "p5", steps, nil)

	bus := eventbus.New(nil)
	var planCompletions int32
	bus.Subscribe(eventbus.TopicPlanCompleted, func(ctx context.Context, ev eventbus.Event) error {
		atomic.AddInt32(&planCompletions, 1)
		return nil
	}, eventbus.DefaultSubscribeOptions())

	o := New(bus, store, time.Second, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()

	require.NoError(t, store.UpdateStep(runDir, "only", manifest.StepCompleted, nil))

	for i := 0; i < 2; i++ {
		_, err := bus.Publish(context.Background(), eventbus.TopicTaskCompleted, eventbus.TaskCompleted{
			PlanID: runDir, TaskID: "only", Output: "out.json", RunPath: runDir,
		})
		require.NoError(t, err)
	}
	bus.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&planCompletions))
}

func TestOrchestrator_InterpolatesStepConfigBeforeDispatch(t *testing.T) {
	steps := []eventbus.PlanStep{
		{ID: "fetch", Worker: "fetch", Output: "raw.json", Config: map[string]any{"urls": []any{"{{feedUrl}}"}}},
	}
	_, store, pc := newTestPlan(t, "p6", steps, map[string]any{"feedUrl": "https://example.com/feed"})

	bus := eventbus.New(nil)
	fw := newFakeWorker(bus, store)
	o := New(bus, store, time.Second, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()

	tr, ok := fw.taskReadyFor("fetch")
	require.True(t, ok)
	urls, ok := tr.Config["urls"].([]any)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/feed", urls[0])
}

func TestOrchestrator_FinalStepMarkedPrimary(t *testing.T) {
	steps := []eventbus.PlanStep{
		{ID: "fetch", Worker: "fetch", Output: "raw.json"},
		{ID: "summarize", Worker: "ai", Input: []string{"raw.json"}, Output: "result.json", DependsOn: []string{"fetch"}},
	}
	_, store, pc := newTestPlan(t, "p7", steps, nil)

	bus := eventbus.New(nil)
	fw := newFakeWorker(bus, store)
	o := New(bus, store, time.Second, nil)
	o.Start()

	_, err := bus.Publish(context.Background(), eventbus.TopicPlanCreated, pc)
	require.NoError(t, err)
	bus.Wait()

	fetchTR, _ := fw.taskReadyFor("fetch")
	summarizeTR, _ := fw.taskReadyFor("summarize")
	assert.False(t, fetchTR.IsPrimary)
	assert.True(t, summarizeTR.IsPrimary)
}
