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

package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

const manifestFileName = "run.json"

// Store is the sole means of mutating run.json. Every mutation is a
// read-modify-write of the whole file; concurrent mutations of the same
// run directory are serialized through a per-directory mutex registry,
// grounded on the teacher's per-Runner mutex intent
// (internal/daemon/runner/state.go) narrowed to directory granularity
// since the manifest, not an in-memory struct, is this engine's source of
// truth.
type Store struct {
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(runDir string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[runDir]
	if !ok {
		l = &sync.Mutex{}
		s.locks[runDir] = l
	}
	return l
}

// withMutation serializes a read-modify-write cycle over runDir's
// manifest.
func (s *Store) withMutation(runDir string, fn func(m *Manifest) error) error {
	lock := s.lockFor(runDir)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.read(runDir)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		return err
	}
	return s.write(runDir, m)
}

func (s *Store) path(runDir string) string {
	return filepath.Join(runDir, manifestFileName)
}

func (s *Store) read(runDir string) (*Manifest, error) {
	data, err := os.ReadFile(s.path(runDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &conductorerrors.NotFoundError{Resource: "manifest", ID: runDir}
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest at %s: %w", s.path(runDir), err)
	}
	return &m, nil
}

// write persists the manifest as a whole file. It writes to a temp file in
// the same directory and renames over the target so a reader never
// observes a partially-written manifest.
func (s *Store) write(runDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	tmp := s.path(runDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(runDir))
}

// Create computes the initial steps[] from the definition and writes the
// manifest for a new run.
func (s *Store) Create(runDir string, opts CreateOptions) (*Manifest, error) {
	lock := s.lockFor(runDir)
	lock.Lock()
	defer lock.Unlock()

	m := &Manifest{
		InstanceID:   opts.InstanceID,
		WorkloadID:   opts.WorkloadID,
		WorkloadName: opts.WorkloadName,
		Status:       StatusPending,
		StartedAt:    opts.StartedAt,
		Input:        opts.Input,
		Outputs:      []OutputRecord{},
		Version:      ManifestVersion,
		CreatedBy:    opts.CreatedBy,
	}

	for _, step := range opts.Steps {
		m.Steps = append(m.Steps, StepRecord{
			ID:     step.ID,
			Name:   step.Name,
			Worker: step.Worker,
			Status: StepPending,
			Output: step.Output,
		})
	}

	if opts.PrimaryOutput != "" {
		m.PrimaryOutput = opts.PrimaryOutput
	} else if len(opts.Steps) == 0 {
		m.PrimaryOutput = opts.PromptResultFile
	}

	if err := s.write(runDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateOptions parameterizes Store.Create.
type CreateOptions struct {
	InstanceID       string
	WorkloadID       string
	WorkloadName     string
	Input            map[string]any
	CreatedBy        string
	StartedAt        time.Time
	Steps            []StepSeed
	PrimaryOutput    string // for step workloads: the final step's output filename
	PromptResultFile string // for prompt workloads: "result.<ext>"
}

// StepSeed is the minimal per-step data Create needs to seed steps[].
type StepSeed struct {
	ID     string
	Name   string
	Worker string
	Output string
}

// MarkRunStarted transitions status to running.
func (s *Store) MarkRunStarted(runDir string) error {
	return s.withMutation(runDir, func(m *Manifest) error {
		if m.Status == StatusCompleted || m.Status == StatusFailed {
			return nil // terminal states never change (property 1)
		}
		m.Status = StatusRunning
		return nil
	})
}

// MarkRunCompleted transitions status to completed and sets
// completedAt/duration.
func (s *Store) MarkRunCompleted(runDir string) error {
	return s.withMutation(runDir, func(m *Manifest) error {
		if isTerminal(m.Status) {
			return nil
		}
		now := time.Now()
		m.CompletedAt = &now
		d := now.Sub(m.StartedAt).Milliseconds()
		m.DurationMs = &d
		m.Status = StatusCompleted
		return nil
	})
}

// MarkRunFailed transitions status to failed, records the error, and sets
// completedAt/duration.
func (s *Store) MarkRunFailed(runDir string, cause error) error {
	return s.withMutation(runDir, func(m *Manifest) error {
		if isTerminal(m.Status) {
			return nil
		}
		now := time.Now()
		m.CompletedAt = &now
		d := now.Sub(m.StartedAt).Milliseconds()
		m.DurationMs = &d
		m.Status = StatusFailed
		if cause != nil {
			m.Error = cause.Error()
		}
		return nil
	})
}

func isTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// UpdateStep sets a step's status, stamping startedAt on the first
// transition to running and completedAt/duration on terminal states.
func (s *Store) UpdateStep(runDir, stepID, status string, stepErr error) error {
	return s.withMutation(runDir, func(m *Manifest) error {
		for i := range m.Steps {
			if m.Steps[i].ID != stepID {
				continue
			}
			step := &m.Steps[i]
			if step.Status == StepCompleted || step.Status == StepFailed || step.Status == StepSkipped {
				return nil // terminal step states never change
			}
			if status == StepRunning && step.StartedAt == nil {
				now := time.Now()
				step.StartedAt = &now
			}
			if status == StepCompleted || status == StepFailed || status == StepSkipped {
				now := time.Now()
				step.CompletedAt = &now
				if step.StartedAt != nil {
					d := now.Sub(*step.StartedAt).Milliseconds()
					step.DurationMs = &d
				}
			}
			step.Status = status
			if stepErr != nil {
				step.Error = stepErr.Error()
			}
			return nil
		}
		return &conductorerrors.NotFoundError{Resource: "step", ID: stepID}
	})
}

// RecordOutput is an idempotent upsert of an output record keyed by
// filename.
func (s *Store) RecordOutput(runDir string, rec OutputRecord) error {
	return s.withMutation(runDir, func(m *Manifest) error {
		for i := range m.Outputs {
			if m.Outputs[i].File == rec.File {
				m.Outputs[i] = rec
				return nil
			}
		}
		m.Outputs = append(m.Outputs, rec)
		return nil
	})
}

// Read returns a copy of the manifest, or a NotFoundError if run.json does
// not exist.
func (s *Store) Read(runDir string) (*Manifest, error) {
	lock := s.lockFor(runDir)
	lock.Lock()
	defer lock.Unlock()
	return s.read(runDir)
}

// Summary returns the condensed view of a run.
func (s *Store) Summary(runDir string) (*Summary, error) {
	m, err := s.Read(runDir)
	if err != nil {
		return nil, err
	}
	return &Summary{
		InstanceID:    m.InstanceID,
		WorkloadName:  m.WorkloadName,
		Status:        m.Status,
		DurationMs:    m.DurationMs,
		OutputCount:   len(m.Outputs),
		PrimaryOutput: m.PrimaryOutput,
	}, nil
}
