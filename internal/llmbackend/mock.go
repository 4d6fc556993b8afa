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

package llmbackend

import (
	"context"
	"fmt"
)

// MockBackend is an offline test double: it never makes a network or
// process call and returns a deterministic response derived from the
// prompt, for unit tests and ai.useMock=true deployments (spec.md §9
// design note on the AI backend being external and swappable).
type MockBackend struct {
	// Responder, if set, computes the response for a given prompt/model.
	// When nil, Complete returns "mock response to: " followed by the
	// prompt.
	Responder func(prompt, model string) (string, error)
}

func (MockBackend) Name() string { return "mock" }

func (m MockBackend) Complete(ctx context.Context, prompt, model string) (string, error) {
	if m.Responder != nil {
		return m.Responder(prompt, model)
	}
	return fmt.Sprintf("mock response to: %s", prompt), nil
}
