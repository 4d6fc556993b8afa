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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const promptYAML = `
id: weather
name: Weather Lookup
version: 1.0.0
prompt: "Weather for {{location}}"
output:
  format: json
`

const stepsYAML = `
id: news-digest
name: News Digest
version: 1.0.0
steps:
  - id: fetch-news
    worker: fetch
    config:
      url: https://example.com/feed
    output: raw-news.json
  - id: summarize
    worker: ai
    input: [raw-news.json]
    output: digest.md
    dependsOn: [fetch-news]
`

const cyclicYAML = `
id: broken
name: Broken
version: 1.0.0
steps:
  - id: A
    worker: exec
    config: {command: "echo"}
    output: a.json
    dependsOn: [B]
  - id: B
    worker: exec
    config: {command: "echo"}
    output: b.json
    dependsOn: [A]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoader_DiscoversAndValidates(t *testing.T) {
	personal := t.TempDir()
	examples := t.TempDir()
	writeFile(t, personal, "weather.yaml", promptYAML)
	writeFile(t, examples, "news.yaml", stepsYAML)

	l := New(personal, examples, nil)
	require.NoError(t, l.Reload())

	assert.NotNil(t, l.Get("weather"))
	assert.NotNil(t, l.Get("news-digest"))
	assert.Len(t, l.List(), 2)
	assert.Empty(t, l.Errors())
}

func TestLoader_PersonalShadowsExample(t *testing.T) {
	personal := t.TempDir()
	examples := t.TempDir()
	writeFile(t, personal, "weather.yaml", promptYAML)
	writeFile(t, examples, "weather.yaml", promptYAML)

	l := New(personal, examples, nil)
	require.NoError(t, l.Reload())

	assert.Equal(t, filepath.Join(personal, "weather.yaml"), l.PathOf("weather"))
}

func TestLoader_CyclicWorkloadRejected(t *testing.T) {
	personal := t.TempDir()
	writeFile(t, personal, "broken.yaml", cyclicYAML)

	l := New(personal, "", nil)
	require.NoError(t, l.Reload())

	assert.Nil(t, l.Get("broken"))
	errs := l.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Errors[0], "circular dependencies")
}

func TestLoader_ReloadIdempotentOnUnchangedFilesystem(t *testing.T) {
	personal := t.TempDir()
	writeFile(t, personal, "weather.yaml", promptYAML)

	l := New(personal, "", nil)
	require.NoError(t, l.Reload())
	first := l.List()

	require.NoError(t, l.Reload())
	second := l.List()

	require.Len(t, second, len(first))
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestLoader_MissingRootIsNotAnError(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "does-not-exist"), "", nil)
	require.NoError(t, l.Reload())
	assert.Empty(t, l.List())
}

func TestSerialize_RoundTrip(t *testing.T) {
	def, err := ParseDefinition([]byte(promptYAML))
	require.NoError(t, err)
	require.NoError(t, def.Validate())

	out, err := Serialize(def)
	require.NoError(t, err)

	reloaded, err := ParseDefinition(out)
	require.NoError(t, err)
	require.NoError(t, reloaded.Validate())

	assert.Equal(t, def.ID, reloaded.ID)
	assert.Equal(t, def.Prompt, reloaded.Prompt)
}

func TestFinalStepID(t *testing.T) {
	def, err := ParseDefinition([]byte(stepsYAML))
	require.NoError(t, err)
	assert.Equal(t, "summarize", def.FinalStepID())
}
