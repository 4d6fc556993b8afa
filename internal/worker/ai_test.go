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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/llmbackend"
)

func TestAIExecutor_TextWrapsWithTimestamp(t *testing.T) {
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		return "the answer is 42", nil
	}}
	a := NewAIExecutor(backend, "default", nil, nil)
	task := eventbus.TaskReady{Config: map[string]any{"prompt": "what is the answer?"}}

	result, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, "text", result.Format)
	assert.Contains(t, string(result.Data), "the answer is 42")
}

func TestAIExecutor_JSONExtractedFromFencedBlock(t *testing.T) {
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		return "here you go:\n```json\n{\"ok\":true}\n```\n", nil
	}}
	a := NewAIExecutor(backend, "default", nil, nil)
	task := eventbus.TaskReady{Config: map[string]any{"prompt": "go", "outputFormat": "json"}}

	result, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", result.Format)
	assert.JSONEq(t, `{"ok":true}`, string(result.Data))
}

func TestAIExecutor_MarkdownWraps(t *testing.T) {
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		return "body text", nil
	}}
	a := NewAIExecutor(backend, "default", nil, nil)
	task := eventbus.TaskReady{Config: map[string]any{"prompt": "go", "outputFormat": "markdown"}}

	result, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, "md", result.Format)
	assert.Contains(t, string(result.Data), "# Result")
	assert.Contains(t, string(result.Data), "body text")
}

func TestAIExecutor_AppendsInputFileContents(t *testing.T) {
	var seenPrompt string
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		seenPrompt = prompt
		return "ok", nil
	}}
	a := NewAIExecutor(backend, "default", nil, nil)
	task := eventbus.TaskReady{Config: map[string]any{"prompt": "summarize"}}
	inputs := map[string]InputFile{
		"raw-news.json": {Name: "raw-news.json", Data: []byte(`{"items":[]}`)},
	}

	_, err := a.Execute(context.Background(), task, inputs)
	require.NoError(t, err)
	assert.Contains(t, seenPrompt, "raw-news.json")
}

func TestAIExecutor_MissingPromptIsPermanentError(t *testing.T) {
	a := NewAIExecutor(llmbackend.MockBackend{}, "default", nil, nil)
	task := eventbus.TaskReady{Config: map[string]any{}}

	_, err := a.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestAIExecutor_AlertConditionTrueDeliversDescriptor(t *testing.T) {
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		return `{"severity":"critical"}`, nil
	}}
	recorded := &recordingDeliverer{channel: "log"}
	a := NewAIExecutor(backend, "default", map[string]Deliverer{"log": recorded}, nil)
	task := eventbus.TaskReady{
		Config: map[string]any{"prompt": "check status", "outputFormat": "json"},
		Alert: &eventbus.AlertTrigger{
			Condition: `output.severity == "critical"`,
			Title:     "Critical status",
			Message:   "severity is critical",
			Type:      "log",
		},
	}

	_, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	require.Len(t, recorded.delivered, 1)
	assert.Equal(t, "Critical status", recorded.delivered[0].Title)
}

func TestAIExecutor_AlertConditionFalseDeliversNothing(t *testing.T) {
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		return `{"severity":"info"}`, nil
	}}
	recorded := &recordingDeliverer{channel: "log"}
	a := NewAIExecutor(backend, "default", map[string]Deliverer{"log": recorded}, nil)
	task := eventbus.TaskReady{
		Config: map[string]any{"prompt": "check status", "outputFormat": "json"},
		Alert: &eventbus.AlertTrigger{
			Condition: `output.severity == "critical"`,
			Title:     "Critical status",
			Type:      "log",
		},
	}

	_, err := a.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Empty(t, recorded.delivered)
}

type recordingDeliverer struct {
	channel   string
	delivered []AlertDescriptor
}

func (r *recordingDeliverer) Channel() string { return r.channel }

func (r *recordingDeliverer) Deliver(ctx context.Context, a AlertDescriptor) error {
	r.delivered = append(r.delivered, a)
	return nil
}

func TestAIExecutor_BackendFailureIsTransientError(t *testing.T) {
	backend := llmbackend.MockBackend{Responder: func(prompt, model string) (string, error) {
		return "", errors.New("backend unreachable")
	}}
	a := NewAIExecutor(backend, "default", nil, nil)
	task := eventbus.TaskReady{Config: map[string]any{"prompt": "go"}}

	_, err := a.Execute(context.Background(), task, nil)
	require.Error(t, err)
}
