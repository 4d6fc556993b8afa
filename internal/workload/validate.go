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

package workload

import (
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Validate checks a parsed Definition against the schema invariants of
// §3: required fields, semver format, exactly one execution shape, unique
// step ids, dependency closure, and acyclicity. It returns the first
// violation found, matching the teacher's fail-on-first-error Validate
// style (pkg/workflow/definition.go).
func (d *Definition) Validate() error {
	if d.ID == "" {
		return &conductorerrors.ValidationError{
			Field:      "id",
			Message:    "workload id is required",
			Suggestion: "add a unique 'id' field",
		}
	}
	if d.Name == "" {
		return &conductorerrors.ValidationError{
			Field:      "name",
			Message:    "workload name is required",
			Suggestion: "add a descriptive 'name' field",
		}
	}
	if d.Version == "" {
		return &conductorerrors.ValidationError{
			Field:      "version",
			Message:    "workload version is required",
			Suggestion: "add a semver 'version' field, e.g. 1.0.0",
		}
	}
	if !semverPattern.MatchString(d.Version) {
		return &conductorerrors.ValidationError{
			Field:      "version",
			Message:    fmt.Sprintf("version %q is not valid semver", d.Version),
			Suggestion: "use MAJOR.MINOR.PATCH, e.g. 1.0.0",
		}
	}

	isPrompt := d.IsPromptShape()
	isSteps := d.IsStepShape()
	if isPrompt == isSteps {
		return &conductorerrors.ValidationError{
			Field:      "prompt/steps",
			Message:    "exactly one of 'prompt' or 'steps' must be present",
			Suggestion: "define either a top-level 'prompt' or a 'steps' list, not both or neither",
		}
	}

	for name, param := range d.Input {
		if err := param.validate(name); err != nil {
			return err
		}
	}

	if err := d.Permissions.validate(); err != nil {
		return err
	}

	if isPrompt {
		if d.Output == nil || d.Output.Format == "" {
			return &conductorerrors.ValidationError{
				Field:      "output.format",
				Message:    "prompt workloads require output.format",
				Suggestion: "set output.format to json, markdown, or text",
			}
		}
		switch d.Output.Format {
		case OutputJSON, OutputMarkdown, OutputText:
		default:
			return &conductorerrors.ValidationError{
				Field:      "output.format",
				Message:    fmt.Sprintf("unknown output.format %q", d.Output.Format),
				Suggestion: "use json, markdown, or text",
			}
		}
		return nil
	}

	return d.validateSteps()
}

// validate checks that every glob pattern in an optional permissions block
// (§3 [ADDED]) is syntactically valid doublestar syntax, the same library
// the EXEC and FETCH workers match against at dispatch time. A nil
// Permissions is valid: the workload is simply unrestricted.
func (p *Permissions) validate() error {
	if p == nil {
		return nil
	}
	if p.Network != nil {
		for _, pattern := range p.Network.AllowedHosts {
			if !doublestar.ValidatePattern(pattern) {
				return &conductorerrors.ValidationError{
					Field:      "permissions.network.allowedHosts",
					Message:    fmt.Sprintf("invalid glob pattern %q", pattern),
					Suggestion: "use doublestar glob syntax, e.g. *.example.com",
				}
			}
		}
	}
	if p.Filesystem != nil {
		for _, pattern := range p.Filesystem.AllowedPaths {
			if !doublestar.ValidatePattern(pattern) {
				return &conductorerrors.ValidationError{
					Field:      "permissions.filesystem.allowedPaths",
					Message:    fmt.Sprintf("invalid glob pattern %q", pattern),
					Suggestion: "use doublestar glob syntax, e.g. /data/**",
				}
			}
		}
	}
	return nil
}

func (p InputParameter) validate(name string) error {
	switch p.Type {
	case InputTypeString, InputTypeNumber, InputTypeBoolean:
	default:
		return &conductorerrors.ValidationError{
			Field:      fmt.Sprintf("input.%s.type", name),
			Message:    fmt.Sprintf("unknown input type %q", p.Type),
			Suggestion: "use string, number, or boolean",
		}
	}
	return nil
}

func (d *Definition) validateSteps() error {
	ids := make(map[string]bool, len(d.Steps))
	outputs := make(map[string]string, len(d.Steps)) // output filename -> producing step id

	for _, s := range d.Steps {
		if s.ID == "" {
			return &conductorerrors.ValidationError{
				Field:      "steps[].id",
				Message:    "step id is required",
				Suggestion: "add an 'id' field to every step",
			}
		}
		if ids[s.ID] {
			return &conductorerrors.ValidationError{
				Field:      "steps[].id",
				Message:    fmt.Sprintf("duplicate step id: %s", s.ID),
				Suggestion: "ensure every step has a unique id",
			}
		}
		ids[s.ID] = true

		switch s.Worker {
		case WorkerAI, WorkerFetch, WorkerExec, WorkerCountdown, WorkerAlert:
		default:
			return &conductorerrors.ValidationError{
				Field:      fmt.Sprintf("steps.%s.worker", s.ID),
				Message:    fmt.Sprintf("unknown worker %q", s.Worker),
				Suggestion: "use one of: ai, fetch, exec, countdown, alert",
			}
		}

		if s.Output != "" {
			outputs[s.Output] = s.ID
		}
	}

	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return &conductorerrors.ValidationError{
					Field:      fmt.Sprintf("steps.%s.dependsOn", s.ID),
					Message:    fmt.Sprintf("step %s depends on undefined step %s", s.ID, dep),
					Suggestion: "fix the dependsOn reference or add the missing step",
				}
			}
		}
		for _, in := range s.Input {
			if _, ok := outputs[in]; !ok {
				return &conductorerrors.ValidationError{
					Field:      fmt.Sprintf("steps.%s.input", s.ID),
					Message:    fmt.Sprintf("step %s references input %q which is not produced by any step's output", s.ID, in),
					Suggestion: "reference a filename that another step declares as its output",
				}
			}
		}
	}

	if cyclePath := detectCycle(d.Steps); cyclePath != "" {
		return &conductorerrors.ValidationError{
			Field:      "steps[].dependsOn",
			Message:    fmt.Sprintf("workload contains circular dependencies: %s", cyclePath),
			Suggestion: "remove the cycle from dependsOn references",
		}
	}

	return nil
}

// detectCycle runs a DFS over the dependsOn graph and returns a
// human-readable description of the first cycle found, or "" if the graph
// is acyclic.
func detectCycle(steps []Step) string {
	adj := make(map[string][]string, len(steps))
	for _, s := range steps {
		adj[s.ID] = s.DependsOn
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))
	var path []string

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				return fmt.Sprintf("%v -> %s", path, dep)
			case white:
				if cyc := visit(dep); cyc != "" {
					return cyc
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return ""
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if cyc := visit(s.ID); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}
