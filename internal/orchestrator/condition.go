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
	"github.com/HemSoft/hs-conductor-sub000/internal/exprutil"
)

// evaluateCondition evaluates step.Condition against the plan's instance
// input, exposed to the expression as the "input" variable (e.g.
// `input.feedUrl != ""`). An empty condition is always true, matching
// spec.md's "steps with no condition are always ready once their
// dependencies are satisfied."
func evaluateCondition(condition string, input map[string]any) (bool, error) {
	return exprutil.EvalBool(condition, map[string]any{"input": input})
}
