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

// Package workload defines the workload definition schema and the
// loader/validator that discovers, parses, and validates YAML recipes
// (§3, §4.1).
package workload

// Worker names recognized by the engine (§3 Step shape).
const (
	WorkerAI        = "ai"
	WorkerFetch     = "fetch"
	WorkerExec      = "exec"
	WorkerCountdown = "countdown"
	WorkerAlert     = "alert"
)

// OutputFormat values recognized for prompt-shaped workloads.
const (
	OutputJSON     = "json"
	OutputMarkdown = "markdown"
	OutputText     = "text"
)

// InputType values recognized for a workload's declared input parameters.
const (
	InputTypeString  = "string"
	InputTypeNumber  = "number"
	InputTypeBoolean = "boolean"
)

// Definition is a parsed, validated workload recipe (§3 Workload
// Definition). Exactly one of Prompt or Steps is populated, enforced by
// Validate.
type Definition struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description,omitempty"`
	Version     string                    `yaml:"version"`
	Tags        []string                  `yaml:"tags,omitempty"`
	Alert       *AlertConfig              `yaml:"alert,omitempty"`
	Input       map[string]InputParameter `yaml:"input,omitempty"`

	// Prompt shape.
	Prompt string        `yaml:"prompt,omitempty"`
	Model  string        `yaml:"model,omitempty"`
	Output *OutputConfig `yaml:"output,omitempty"`

	// Step shape.
	Steps []Step `yaml:"steps,omitempty"`

	// Permissions is an optional static allow-list passthrough enforced
	// only for the EXEC and FETCH workers.
	Permissions *Permissions `yaml:"permissions,omitempty"`

	// Type is tolerated and ignored: the shape-inferred schema is
	// canonical (design note §9 Open Question).
	Type string `yaml:"type,omitempty"`
}

// InputParameter describes one declared workload input (§3).
type InputParameter struct {
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required,omitempty"`
	Description string `yaml:"description,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// OutputConfig is the prompt shape's required output descriptor.
type OutputConfig struct {
	Format string `yaml:"format"`
}

// AlertConfig is the optional alert-on-output evaluation attached to a
// workload (used by the AI worker, §4.3.5).
type AlertConfig struct {
	Condition string `yaml:"condition"`
	Title     string `yaml:"title"`
	Message   string `yaml:"message,omitempty"`
	Type      string `yaml:"type,omitempty"`
	Priority  string `yaml:"priority,omitempty"`
}

// Step is one node of a step-shaped workload's DAG (§3).
type Step struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name,omitempty"`
	Worker    string         `yaml:"worker"`
	Config    map[string]any `yaml:"config,omitempty"`
	Input     []string       `yaml:"input,omitempty"`
	Output    string         `yaml:"output,omitempty"`
	DependsOn []string       `yaml:"dependsOn,omitempty"`
	Condition string         `yaml:"condition,omitempty"`
	Parallel  bool           `yaml:"parallel,omitempty"`
}

// Permissions is the static network/filesystem allow-list passthrough
// (§3 [ADDED]); it is not a general plugin permission ABI.
type Permissions struct {
	Network    *NetworkPermissions    `yaml:"network,omitempty"`
	Filesystem *FilesystemPermissions `yaml:"filesystem,omitempty"`
}

// NetworkPermissions restricts the FETCH worker to an allow-list of host
// glob patterns.
type NetworkPermissions struct {
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`
}

// FilesystemPermissions restricts the EXEC worker's working directory and
// the glob patterns it may read or write beyond the run directory.
type FilesystemPermissions struct {
	AllowedPaths []string `yaml:"allowedPaths,omitempty"`
}

// IsPromptShape reports whether this definition is the prompt shape.
func (d *Definition) IsPromptShape() bool {
	return d.Prompt != ""
}

// IsStepShape reports whether this definition is the step shape.
func (d *Definition) IsStepShape() bool {
	return len(d.Steps) > 0
}

// StepByID returns the step with the given id, or nil.
func (d *Definition) StepByID(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// FinalStepID returns the id of the step that has no descendants (the
// step nothing else depends on), used to compute primaryOutput for step
// workloads. Ties are broken by definition order; the last such step in
// the list wins, matching spec.md §3's "last step's output" in the common
// single-terminal-step case.
func (d *Definition) FinalStepID() string {
	hasDescendant := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			hasDescendant[dep] = true
		}
	}
	for i := len(d.Steps) - 1; i >= 0; i-- {
		if !hasDescendant[d.Steps[i].ID] {
			return d.Steps[i].ID
		}
	}
	if len(d.Steps) > 0 {
		return d.Steps[len(d.Steps)-1].ID
	}
	return ""
}
