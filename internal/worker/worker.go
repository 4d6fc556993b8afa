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

// Package worker implements the five typed task.ready handlers (AI, FETCH,
// EXEC, COUNTDOWN, ALERT). Every worker shares the same six-step contract
// (§4.3): read input files, execute the type-specific operation, write one
// output file, record it, update the step, emit task.completed. Dispatcher
// carries the shared steps; each Executor implements only step 2, matching
// the idempotent-steps design note (§9): a retry re-runs Execute alone,
// while writing the output and updating the manifest are overwrite-safe.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/HemSoft/hs-conductor-sub000/internal/config"
	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// InputFile is one referenced input, read from runPath/<name> before
// Execute runs. Missing files are tolerated (§4.3 step 1): Err is set and
// Data is nil rather than failing the whole task.
type InputFile struct {
	Name string
	Data []byte
	Err  error
}

// Result is what an Executor hands back to the Dispatcher: the bytes to
// write as the output file and the format tag recorded alongside it in the
// manifest's outputs[] entry.
type Result struct {
	Data   []byte
	Format string
}

// Executor performs one worker type's step 2 only; the Dispatcher supplies
// steps 1 and 3-6 uniformly. An error returned here is the worker-level
// failure path (§4.3, §7): the step becomes failed and no task.completed is
// emitted, leaving the orchestrator's retry budget / timeout to react.
// Operation-level failures that the contract still wants reported inside
// the output document (e.g. EXEC's non-zero exit, FETCH's partial
// failures) are NOT Go errors — Execute returns a Result describing them
// and a nil error.
type Executor interface {
	Name() string
	Execute(ctx context.Context, task eventbus.TaskReady, inputs map[string]InputFile) (Result, error)
}

// Dispatcher wires Executors to the bus's task.ready topic, filtering each
// subscription to its own worker name and applying the shared contract
// steps around Execute.
type Dispatcher struct {
	bus              *eventbus.Bus
	store            *manifest.Store
	logger           *slog.Logger
	allowedWritePath string
}

// NewDispatcher constructs a Dispatcher over bus and store. allowedWritePath
// is the write-sandbox root (§6.3); pass "*" to disable the sandbox or ""
// to fall back to the process's working directory.
func NewDispatcher(bus *eventbus.Bus, store *manifest.Store, logger *slog.Logger, allowedWritePath string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{bus: bus, store: store, logger: clog.WithComponent(logger, "worker"), allowedWritePath: allowedWritePath}
}

// Register subscribes executor to task.ready with the given per-worker
// concurrency ceiling (§5.3) and retry budget.
func (d *Dispatcher) Register(executor Executor, concurrency, maxRetries int) {
	opts := eventbus.DefaultSubscribeOptions()
	if concurrency > 0 {
		opts.Concurrency = concurrency
	}
	if maxRetries > 0 {
		opts.MaxRetries = maxRetries
	}
	d.bus.Subscribe(eventbus.TopicTaskReady, func(ctx context.Context, ev eventbus.Event) error {
		task, ok := ev.Payload.(eventbus.TaskReady)
		if !ok {
			return nil
		}
		if task.Worker != executor.Name() {
			return nil // filtered by event.worker, per the worker contract
		}
		return d.run(ctx, executor, task)
	}, opts)
}

func (d *Dispatcher) run(ctx context.Context, executor Executor, task eventbus.TaskReady) error {
	inputs := readInputs(task.RunPath, task.Input)

	result, err := executor.Execute(ctx, task, inputs)
	if err != nil {
		d.logger.Warn("worker execution failed",
			clog.WorkerKey, task.Worker, clog.StepIDKey, task.TaskID, "error", err)
		if markErr := d.store.UpdateStep(task.RunPath, task.TaskID, manifest.StepFailed, err); markErr != nil {
			d.logger.Error("failed to mark step failed", clog.StepIDKey, task.TaskID, "error", markErr)
		}
		return err
	}

	if err := writeOutput(d.allowedWritePath, task.RunPath, task.Output, result.Data); err != nil {
		if markErr := d.store.UpdateStep(task.RunPath, task.TaskID, manifest.StepFailed, err); markErr != nil {
			d.logger.Error("failed to mark step failed", clog.StepIDKey, task.TaskID, "error", markErr)
		}
		return err
	}

	outputType := manifest.OutputIntermediate
	if task.IsPrimary {
		outputType = manifest.OutputPrimary
	}
	rec := manifest.OutputRecord{
		File:   task.Output,
		Step:   task.TaskID,
		Type:   outputType,
		Format: result.Format,
		Size:   int64(len(result.Data)),
	}
	if err := d.store.RecordOutput(task.RunPath, rec); err != nil {
		return err
	}

	if err := d.store.UpdateStep(task.RunPath, task.TaskID, manifest.StepCompleted, nil); err != nil {
		return err
	}

	_, err = d.bus.Publish(ctx, eventbus.TopicTaskCompleted, eventbus.TaskCompleted{
		PlanID:  task.PlanID,
		TaskID:  task.TaskID,
		Output:  task.Output,
		RunPath: task.RunPath,
	})
	return err
}

// readInputs loads every referenced input file relative to runPath. A
// missing or unreadable file is tolerated (§4.3 step 1): the InputFile
// carries the error instead of aborting the task.
func readInputs(runPath string, names []string) map[string]InputFile {
	out := make(map[string]InputFile, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(runPath, name))
		out[name] = InputFile{Name: name, Data: data, Err: err}
	}
	return out
}

// inputJSONAppendix renders the collected input files as a JSON object
// keyed by filename, substituting {"error": "Could not read file"} for any
// file that failed to read (§4.3 step 1), for workers (AI) that need to
// append file contents to a prompt or document.
func inputJSONAppendix(inputs map[string]InputFile) ([]byte, error) {
	appendix := make(map[string]any, len(inputs))
	for name, f := range inputs {
		if f.Err != nil {
			appendix[name] = map[string]string{"error": "Could not read file"}
			continue
		}
		var parsed any
		if err := json.Unmarshal(f.Data, &parsed); err != nil {
			appendix[name] = string(f.Data)
			continue
		}
		appendix[name] = parsed
	}
	return json.MarshalIndent(appendix, "", "  ")
}

// writeOutput writes data to runPath/output atomically (temp file + rename)
// so a concurrent reader never observes a partial write, overwrite-on-write
// acceptable for retries (§4.3). A resolved path outside allowedWritePath is
// a write-sandbox violation (§6.3, §7) and fails permanently — never
// retried, since a retry would resolve to the same escaping path.
func writeOutput(allowedWritePath, runPath, output string, data []byte) error {
	target := filepath.Join(runPath, output)
	if !config.PathAllowed(allowedWritePath, target) {
		return &conductorerrors.PermanentError{Cause: fmt.Errorf("write-sandbox violation: %s escapes %s", target, allowedWritePath)}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
