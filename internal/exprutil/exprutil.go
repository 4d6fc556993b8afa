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

// Package exprutil compiles and evaluates the expr-lang boolean
// expressions the engine uses in two places: a step's optional
// condition (§4.4, evaluated against "input") and a workload's optional
// alert condition (§4.3.5, evaluated against "output"). Both share the
// same compile-cache-evaluate shape, so it lives once here instead of
// twice in internal/orchestrator and internal/worker.
package exprutil

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

var cache = struct {
	mu    sync.RWMutex
	progs map[string]*vm.Program
}{progs: make(map[string]*vm.Program)}

// EvalBool compiles (and memoizes) expression, then runs it against env,
// requiring the result to be a boolean. An empty expression is always
// true. Compile and evaluation failures are returned as ValidationError,
// so callers can treat a bad expression as a rejected configuration
// rather than a transient failure.
func EvalBool(expression string, env map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := compile(expression)
	if err != nil {
		return false, &conductorerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile expression: %s", err),
			Suggestion: "check condition syntax against the expr-lang grammar",
		}
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, &conductorerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expression evaluation failed: %s", err),
			Suggestion: "verify every field referenced by the condition exists on the evaluated value",
		}
	}

	b, ok := out.(bool)
	if !ok {
		return false, &conductorerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition must evaluate to a boolean, got %T", out),
			Suggestion: "use comparison operators (==, !=, <, >) or boolean functions",
		}
	}
	return b, nil
}

func compile(expression string) (*vm.Program, error) {
	cache.mu.RLock()
	if p, ok := cache.progs[expression]; ok {
		cache.mu.RUnlock()
		return p, nil
	}
	cache.mu.RUnlock()

	p, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, err
	}

	cache.mu.Lock()
	cache.progs[expression] = p
	cache.mu.Unlock()
	return p, nil
}
