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

// Package llmbackend narrows the engine's AI backend dependency to the one
// operation the AI worker needs (spec's "AI backend" external collaborator),
// grounded on the teacher's provider-agnostic pkg/llm.Provider interface but
// trimmed to a single synchronous call since the core does not stream
// partial outputs (a Non-goal).
package llmbackend

import "context"

// Backend sends a single prompt to an AI model and returns its full text
// response. Anything provider-specific (auth, retries, streaming, cost
// tracking) lives behind the implementation.
type Backend interface {
	// Name identifies the backend for logging ("claudecode", "mock", ...).
	Name() string

	// Complete sends prompt to model (empty string selects the backend's
	// default model) and returns the raw response text.
	Complete(ctx context.Context, prompt, model string) (string, error)
}
