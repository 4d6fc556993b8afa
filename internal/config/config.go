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

// Package config loads the engine's configuration as an explicit merge of
// well-typed structs: built-in defaults, a base file, an environment
// overlay file, and process environment variables — in that precedence
// order (§6.3). It is deliberately not a dynamic map merge, so that an
// unrecognised key in a file surfaces as a yaml decode error rather than
// being silently ignored.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// Config is the complete engine configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Paths       PathsConfig       `yaml:"paths"`
	AI          AIConfig          `yaml:"ai"`
	Workers     WorkersConfig     `yaml:"workers"`
	Logging     LoggingConfig     `yaml:"logging"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Workloads   WorkloadsConfig   `yaml:"workloads"`
}

// WorkloadsConfig configures workload discovery and reload behavior.
type WorkloadsConfig struct {
	WatchEnabled        bool `yaml:"watchEnabled"`
	WatchDebounceMillis int  `yaml:"watchDebounceMillis"`
}

// OrchestratorConfig configures the plan orchestrator.
type OrchestratorConfig struct {
	TaskTimeoutSeconds int `yaml:"taskTimeoutSeconds"`
}

// SchedulerConfig configures the cron scheduler's tick loop.
type SchedulerConfig struct {
	TickIntervalSeconds int `yaml:"tickIntervalSeconds"`
	SafetyCap           int `yaml:"safetyCap"`
}

// ServerConfig configures the REST facade's listener.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"corsOrigin"`
	Auth       AuthConfig `yaml:"auth"`
}

// AuthConfig configures the REST facade's optional JWT bearer auth. A
// deployment that never sets Secret runs with auth disabled (§1
// Non-goals: the GUI is a trusted local collaborator by default).
type AuthConfig struct {
	Disabled      bool   `yaml:"disabled"`
	Secret        string `yaml:"secret"`
	Issuer        string `yaml:"issuer"`
	ClockSkewSecs int    `yaml:"clockSkewSeconds"`
}

// PathsConfig configures the filesystem roots the engine reads and writes.
type PathsConfig struct {
	Data             string `yaml:"data"`
	Workloads        string `yaml:"workloads"`
	Examples         string `yaml:"examples"`
	AllowedWritePath string `yaml:"allowedWritePath"`
}

// AIConfig configures the AI backend used by the AI worker.
type AIConfig struct {
	DefaultModel string `yaml:"defaultModel"`
	UseMock      bool   `yaml:"useMock"`
	Concurrency  int    `yaml:"concurrency"`
	Retries      int    `yaml:"retries"`
}

// ExecConfig configures the EXEC worker.
type ExecConfig struct {
	Timeout int    `yaml:"timeout"` // milliseconds
	Shell   string `yaml:"shell"`
}

// FetchConfig configures the FETCH worker.
type FetchConfig struct {
	Timeout   int    `yaml:"timeout"` // milliseconds
	UserAgent string `yaml:"userAgent"`
}

// WorkersConfig groups per-worker-type configuration.
type WorkersConfig struct {
	Exec  ExecConfig  `yaml:"exec"`
	Fetch FetchConfig `yaml:"fetch"`
}

// LoggingConfig configures the shared logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in default configuration, the first and lowest
// precedence layer.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:       8787,
			CORSOrigin: "*",
			Auth:       AuthConfig{Disabled: true, ClockSkewSecs: 30},
		},
		Paths: PathsConfig{
			Data:             "./data",
			Workloads:        "./workloads",
			Examples:         "./examples",
			AllowedWritePath: "./data",
		},
		AI: AIConfig{
			DefaultModel: "default",
			UseMock:      false,
			Concurrency:  1,
			Retries:      2,
		},
		Workers: WorkersConfig{
			Exec: ExecConfig{
				Timeout: 30000,
				Shell:   "sh",
			},
			Fetch: FetchConfig{
				Timeout:   15000,
				UserAgent: "workload-orchestrator/1.0",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Orchestrator: OrchestratorConfig{
			TaskTimeoutSeconds: 120,
		},
		Scheduler: SchedulerConfig{
			TickIntervalSeconds: 30,
			SafetyCap:           1500,
		},
		Workloads: WorkloadsConfig{
			WatchEnabled:        false,
			WatchDebounceMillis: 500,
		},
	}
}

// Load builds the layered configuration: defaults, then baseFile, then
// envFile (environment-specific overlay, may be empty), then process
// environment variables.
func Load(baseFile, envFile string) (Config, error) {
	cfg := Default()

	if baseFile != "" {
		if err := overlayFile(&cfg, baseFile); err != nil {
			return cfg, err
		}
	}
	if envFile != "" {
		if err := overlayFile(&cfg, envFile); err != nil {
			return cfg, err
		}
	}
	overlayEnv(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// overlayFile decodes a YAML file directly onto the existing Config value,
// so fields the file omits retain whatever the lower layer already set,
// and fields the file doesn't recognise produce a decode error.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &conductorerrors.ConfigError{Key: path, Reason: "failed to read config file", Cause: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return &conductorerrors.ConfigError{Key: path, Reason: "failed to parse config file", Cause: err}
	}
	return nil
}

// overlayEnv applies recognised environment variables, the highest
// precedence layer.
func overlayEnv(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("SERVER_CORS_ORIGIN"); v != "" {
		cfg.Server.CORSOrigin = v
	}
	if v := os.Getenv("PATHS_DATA"); v != "" {
		cfg.Paths.Data = v
	}
	if v := os.Getenv("PATHS_WORKLOADS"); v != "" {
		cfg.Paths.Workloads = v
	}
	if v := os.Getenv("PATHS_EXAMPLES"); v != "" {
		cfg.Paths.Examples = v
	}
	if v := os.Getenv("PATHS_ALLOWED_WRITE_PATH"); v != "" {
		cfg.Paths.AllowedWritePath = v
	}
	if v := os.Getenv("AI_DEFAULT_MODEL"); v != "" {
		cfg.AI.DefaultModel = v
	}
	if v := os.Getenv("AI_USE_MOCK"); v != "" {
		cfg.AI.UseMock = v == "true" || v == "1"
	}
	if v := os.Getenv("AI_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.Concurrency = n
		}
	}
	if v := os.Getenv("AI_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.Retries = n
		}
	}
	if v := os.Getenv("WORKERS_EXEC_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Exec.Timeout = n
		}
	}
	if v := os.Getenv("WORKERS_EXEC_SHELL"); v != "" {
		cfg.Workers.Exec.Shell = v
	}
	if v := os.Getenv("WORKERS_FETCH_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Fetch.Timeout = n
		}
	}
	if v := os.Getenv("WORKERS_FETCH_USER_AGENT"); v != "" {
		cfg.Workers.Fetch.UserAgent = v
	}
	if v := os.Getenv("LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SERVER_AUTH_SECRET"); v != "" {
		cfg.Server.Auth.Secret = v
		cfg.Server.Auth.Disabled = false
	}
	if v := os.Getenv("SERVER_AUTH_DISABLED"); v != "" {
		cfg.Server.Auth.Disabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ORCHESTRATOR_TASK_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.TaskTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SCHEDULER_TICK_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.TickIntervalSeconds = n
		}
	}
	if v := os.Getenv("WORKLOADS_WATCH_ENABLED"); v != "" {
		cfg.Workloads.WatchEnabled = v == "true" || v == "1"
	}
}

// validate rejects configurations the engine cannot run with.
func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return &conductorerrors.ConfigError{Key: "server.port", Reason: fmt.Sprintf("invalid port %d", cfg.Server.Port)}
	}
	if cfg.Paths.Data == "" {
		return &conductorerrors.ConfigError{Key: "paths.data", Reason: "must not be empty"}
	}
	return nil
}

// SandboxDisabled reports whether the write sandbox has been disabled via
// the "*" sentinel (§6.3).
func (c Config) SandboxDisabled() bool {
	return c.Paths.AllowedWritePath == "*"
}

// IsPathAllowed reports whether path is within the configured write
// sandbox. Always true when the sandbox is disabled.
func (c Config) IsPathAllowed(path string) bool {
	return PathAllowed(c.Paths.AllowedWritePath, path)
}

// PathAllowed reports whether path lies within root, the standalone form
// of the write-sandbox check (§6.3) so callers outside this package (the
// workers writing step output) don't need a full Config value. The "*"
// sentinel disables the sandbox entirely.
func PathAllowed(root, path string) bool {
	if root == "*" {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !filepathHasDotDotPrefix(rel)
}

func filepathHasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}
