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

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/exprutil"
	"github.com/HemSoft/hs-conductor-sub000/internal/llmbackend"
	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// fencedJSONBlock extracts the content of a ```json ... ``` or bare ``` ...
// ``` fenced code block, since AI backends routinely wrap structured
// responses in markdown fences (§4.3.5: "extracted from any fenced code
// block if present").
var fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

// AIExecutor implements the AI worker (§4.3.5). Prompt interpolation of
// {{param}} occurrences happens once, upstream, wherever a task.ready is
// assembled (the orchestrator for step workloads per §4.4 step 3, the
// executor façade for prompt workloads) — by the time Execute runs, config
// "prompt" already carries instance input substituted in, so this worker
// only appends collected input-file contents and invokes the backend.
type AIExecutor struct {
	backend    llmbackend.Backend
	model      string
	deliverers map[string]Deliverer
	logger     *slog.Logger
}

// NewAIExecutor constructs an AIExecutor. defaultModel is used when a step
// doesn't specify one. deliverers is the same channel map the ALERT worker
// uses (§4.3.4); it is consulted only when the dispatched task carries a
// workload-level alert trigger (§4.3.5) whose condition evaluates true
// against the worker's own output. A nil map disables alert delivery
// entirely — the condition is still evaluated and logged, but nothing is
// persisted. A nil logger falls back to slog.Default().
func NewAIExecutor(backend llmbackend.Backend, defaultModel string, deliverers map[string]Deliverer, logger *slog.Logger) *AIExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AIExecutor{backend: backend, model: defaultModel, deliverers: deliverers, logger: clog.WithComponent(logger, "worker.ai")}
}

func (a *AIExecutor) Name() string { return workload.WorkerAI }

func (a *AIExecutor) Execute(ctx context.Context, task eventbus.TaskReady, inputs map[string]InputFile) (Result, error) {
	prompt := configString(task.Config, "prompt")
	if prompt == "" {
		return Result{}, &conductorerrors.PermanentError{Cause: fmt.Errorf("ai: prompt is required")}
	}

	if len(inputs) > 0 {
		appendix, err := inputJSONAppendix(inputs)
		if err != nil {
			return Result{}, err
		}
		prompt = prompt + "\n\n---\nCollected input files:\n" + string(appendix)
	}

	model := configString(task.Config, "model")
	if model == "" {
		model = a.model
	}

	clog.Trace(a.logger, "ai prompt", slog.String(clog.StepIDKey, task.TaskID), slog.String("prompt", prompt), slog.String("model", model))

	raw, err := a.backend.Complete(ctx, prompt, model)
	if err != nil {
		return Result{}, &conductorerrors.TransientError{Cause: fmt.Errorf("ai backend: %w", err)}
	}

	clog.Trace(a.logger, "ai response", slog.String(clog.StepIDKey, task.TaskID), slog.String("response", raw))

	format := configString(task.Config, "outputFormat")
	data, contentFormat := wrapAIOutput(raw, format)

	if task.Alert != nil {
		a.evaluateAlert(ctx, task, raw)
	}

	return Result{Data: data, Format: contentFormat}, nil
}

// evaluateAlert evaluates the workload's alert condition against the
// worker's raw output (§4.3.5: "evaluates the workload's optional alert
// configuration against the output and writes an alert descriptor if
// triggered"). A condition compile/evaluation failure or delivery failure
// is logged-and-swallowed here rather than failing the step: the AI call
// already succeeded and wrote its primary result, and the alert is a
// secondary side effect of that success, not part of the step's own
// contract.
func (a *AIExecutor) evaluateAlert(ctx context.Context, task eventbus.TaskReady, raw string) {
	trigger := task.Alert
	fired, err := exprutil.EvalBool(trigger.Condition, map[string]any{"output": alertOutputEnv(raw)})
	if err != nil {
		a.logger.Warn("alert condition evaluation failed", slog.String(clog.StepIDKey, task.TaskID), slog.String("error", err.Error()))
		return
	}
	a.logger.Info("alert condition evaluated", slog.String(clog.StepIDKey, task.TaskID), slog.Bool("fired", fired))
	if !fired {
		return
	}

	alertType := trigger.Type
	if alertType == "" {
		alertType = "toast"
	}
	channels, err := channelsFor(alertType)
	if err != nil {
		a.logger.Warn("alert type rejected", slog.String(clog.StepIDKey, task.TaskID), slog.String("error", err.Error()))
		return
	}

	descriptor := AlertDescriptor{
		ID:        uuid.NewString(),
		Title:     trigger.Title,
		Message:   trigger.Message,
		Priority:  trigger.Priority,
		Source:    AlertSrc{PlanID: task.PlanID, TaskID: task.TaskID},
		CreatedAt: time.Now().UTC(),
	}
	for _, ch := range channels {
		if d, ok := a.deliverers[ch]; ok {
			if err := d.Deliver(ctx, descriptor); err != nil {
				a.logger.Warn("alert delivery failed", slog.String(clog.StepIDKey, task.TaskID), slog.String("channel", ch), slog.String("error", err.Error()))
			}
		}
	}
}

// alertOutputEnv exposes the AI worker's raw output to the alert
// condition as "output": parsed JSON when the response is a JSON object
// (so a condition can reference fields like output.severity), the bare
// string otherwise.
func alertOutputEnv(raw string) any {
	body := raw
	if m := fencedJSONBlock.FindStringSubmatch(raw); len(m) == 2 {
		body = m[1]
	}
	body = strings.TrimSpace(body)
	var parsed any
	if json.Unmarshal([]byte(body), &parsed) == nil {
		return parsed
	}
	return raw
}

func wrapAIOutput(raw, format string) ([]byte, string) {
	switch format {
	case "json":
		body := raw
		if m := fencedJSONBlock.FindStringSubmatch(raw); len(m) == 2 {
			body = m[1]
		}
		body = strings.TrimSpace(body)
		var probe any
		if json.Unmarshal([]byte(body), &probe) == nil {
			return []byte(body), "json"
		}
		return []byte(body), "text"
	case "markdown", "md":
		doc := fmt.Sprintf("# Result\n\n_Generated %s_\n\n%s\n", time.Now().UTC().Format(time.RFC3339), raw)
		return []byte(doc), "md"
	default:
		doc := fmt.Sprintf("Result (%s)\n\n%s\n", time.Now().UTC().Format(time.RFC3339), raw)
		return []byte(doc), "text"
	}
}
