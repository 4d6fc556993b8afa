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

// Package errors defines the typed error kinds used at package boundaries
// throughout the engine, so callers can branch on kind with errors.As
// instead of matching error strings.
package errors

import "fmt"

// ValidationError represents a malformed workload, schema violation, or
// other rejected user input. Surfaced as 4xx by the REST facade.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a missing workload, run, schedule, or folder.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError represents an attempt to create a resource that already
// exists (e.g. a workload id collision).
type ConflictError struct {
	Resource string
	ID       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}

// ConfigError represents a configuration problem: a missing setting, an
// invalid override, or a malformed config file.
type ConfigError struct {
	Key    string
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// TimeoutError represents an operation that exceeded its configured
// deadline (an EXEC step, an HTTP fetch, a worker invocation).
type TimeoutError struct {
	Operation string
	Cause     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Operation)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// TransientError wraps an error that the caller should retry (HTTP failure,
// spawn failure, AI backend failure) as distinct from a PermanentError that
// should fail immediately without retry.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient error: %s", e.Cause) }
func (e *TransientError) Unwrap() error { return e.Cause }

// PermanentError wraps an error that must never be retried (invalid worker
// config, a write-sandbox violation, an unparseable duration).
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent error: %s", e.Cause) }
func (e *PermanentError) Unwrap() error { return e.Cause }
