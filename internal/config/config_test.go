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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "./data", cfg.Paths.Data)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_BaseFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte("server:\n  port: 9000\npaths:\n  data: /var/conductor/data\n"), 0o644))

	cfg, err := Load(base, "")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/conductor/data", cfg.Paths.Data)
	assert.Equal(t, "*", cfg.Server.CORSOrigin, "unset fields keep the default")
}

func TestLoad_EnvFileOverridesBaseFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	envFile := filepath.Join(dir, "prod.yaml")
	require.NoError(t, os.WriteFile(base, []byte("server:\n  port: 9000\n"), 0o644))
	require.NoError(t, os.WriteFile(envFile, []byte("server:\n  port: 9100\n"), 0o644))

	cfg, err := Load(base, envFile)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoad_ProcessEnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte("server:\n  port: 9000\n"), 0o644))

	t.Setenv("SERVER_PORT", "9200")
	cfg, err := Load(base, "")
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestLoad_MissingFilesAreNotErrors(t *testing.T) {
	cfg, err := Load("/no/such/base.yaml", "/no/such/env.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte("server:\n  bogus: true\n"), 0o644))

	_, err := Load(base, "")
	assert.Error(t, err)
}

func TestLoad_InvalidPortRejected(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte("server:\n  port: 0\n"), 0o644))

	_, err := Load(base, "")
	assert.Error(t, err)
}

func TestIsPathAllowed(t *testing.T) {
	cfg := Default()
	cfg.Paths.AllowedWritePath = "/data/runs"

	assert.True(t, cfg.IsPathAllowed("/data/runs/abc123/output.txt"))
	assert.False(t, cfg.IsPathAllowed("/etc/passwd"))
	assert.False(t, cfg.IsPathAllowed("/data/runs/../../etc/passwd"))
}

func TestIsPathAllowed_SandboxDisabled(t *testing.T) {
	cfg := Default()
	cfg.Paths.AllowedWritePath = "*"

	assert.True(t, cfg.SandboxDisabled())
	assert.True(t, cfg.IsPathAllowed("/etc/passwd"))
}
