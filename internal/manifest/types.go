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

// Package manifest owns the run manifest (run.json): the sole source of
// truth for a run's state (§3, §4.2). Every mutation is a read-modify-write
// of the whole file, serialized per run directory.
package manifest

import "time"

// Run status values (§3). Transitions only through pending → running →
// {completed, failed}; once terminal a status never changes (testable
// property 1, spec.md §8).
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Step status values (§3).
const (
	StepPending   = "pending"
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// Output types (§3).
const (
	OutputIntermediate = "intermediate"
	OutputPrimary      = "primary"
)

// ManifestVersion is written into every manifest's Version field, bumped
// whenever the on-disk shape changes incompatibly.
const ManifestVersion = "1"

// Manifest is the run.json document (§3 Run Manifest). It is the single
// source of truth for a run's state; no other file is authoritative.
type Manifest struct {
	InstanceID   string     `json:"instanceId"`
	WorkloadID   string     `json:"workloadId"`
	WorkloadName string     `json:"workloadName"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	DurationMs   *int64     `json:"duration,omitempty"`
	Error        string     `json:"error,omitempty"`

	Input map[string]any `json:"input"`

	Steps []StepRecord `json:"steps,omitempty"`

	Outputs       []OutputRecord `json:"outputs"`
	PrimaryOutput string         `json:"primaryOutput,omitempty"`

	Version   string `json:"version"`
	CreatedBy string `json:"createdBy"`
}

// StepRecord is one step's manifest entry.
type StepRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Worker      string     `json:"worker"`
	Status      string     `json:"status"`
	Output      string     `json:"output,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  *int64     `json:"duration,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// OutputRecord describes one file written into the run directory.
type OutputRecord struct {
	File   string `json:"file"`
	Step   string `json:"step"`
	Type   string `json:"type"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// Summary is the condensed view returned by Store.Summary.
type Summary struct {
	InstanceID    string `json:"instanceId"`
	WorkloadName  string `json:"workloadName"`
	Status        string `json:"status"`
	DurationMs    *int64 `json:"duration,omitempty"`
	OutputCount   int    `json:"outputCount"`
	PrimaryOutput string `json:"primaryOutput,omitempty"`
}
