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

// Package log provides the structured logging conventions shared by every
// component: consistent field keys, level-from-env configuration, and
// json/text output formats.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is more verbose than slog.LevelDebug, used for the AI worker's
// verbose prompt/response logging and anywhere else a full payload dump
// would be too noisy at debug level.
const LevelTrace = slog.Level(-8)

// Format is the log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Standard field keys, kept consistent across every component so logs can
// be correlated by instance/step/workload id regardless of which package
// emitted them.
const (
	InstanceIDKey = "instance_id"
	StepIDKey     = "step_id"
	WorkloadIDKey = "workload_id"
	WorkerKey     = "worker"
	ScheduleIDKey = "schedule_id"
	DurationKey   = "duration_ms"
	EventKey      = "event"
)

// Config holds logger construction parameters.
type Config struct {
	Level     string
	Format    Format
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns sensible defaults: info level, JSON, stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from LOG_LEVEL and LOG_FORMAT environment
// variables, falling back to DefaultConfig for anything unset.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	if fmtStr := strings.ToLower(os.Getenv("LOG_FORMAT")); fmtStr == string(FormatText) {
		cfg.Format = FormatText
	}
	return cfg
}

// New builds a slog.Logger from the given Config.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}

// Trace logs a message at LevelTrace with optional attributes, mirroring
// slog's own LogAttrs-based level helpers. Call sites that always build an
// expensive attr list should guard with logger.Enabled(ctx, LevelTrace)
// first; this helper checks for them otherwise.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	if !logger.Enabled(context.Background(), LevelTrace) {
		return
	}
	logger.LogAttrs(context.Background(), LevelTrace, msg, attrs...)
}

// WithComponent returns a logger tagged with a "component" field, matching
// the convention used by every package in this module (loader, manifest,
// orchestrator, scheduler, worker, rest).
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}
