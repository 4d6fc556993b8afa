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

package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

func TestFetchExecutor_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewFetchExecutor("test-agent", time.Second, 0, 0)
	task := eventbus.TaskReady{Config: map[string]any{"url": srv.URL}}

	result, err := f.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", result.Format)
	assert.Contains(t, string(result.Data), `"itemCount": 1`)
}

func TestFetchExecutor_RSS(t *testing.T) {
	const feed = `<?xml version="1.0"?>
<rss><channel><item><title>Hello</title><link>https://example.com/a</link><description>World</description><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item></channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewFetchExecutor("test-agent", time.Second, 0, 0)
	task := eventbus.TaskReady{Config: map[string]any{"url": srv.URL, "format": "rss"}}

	result, err := f.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "Hello")
	assert.Contains(t, string(result.Data), "example.com/a")
}

func TestFetchExecutor_PartialFailureStillCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewFetchExecutor("test-agent", time.Second, 0, 0)
	task := eventbus.TaskReady{Config: map[string]any{"urls": []any{srv.URL, "http://127.0.0.1:1/nope"}}}

	result, err := f.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), `"failedSources"`)
}

func TestFetchExecutor_AllFailedIsTransientError(t *testing.T) {
	f := NewFetchExecutor("test-agent", 100*time.Millisecond, 0, 0)
	task := eventbus.TaskReady{Config: map[string]any{"url": "http://127.0.0.1:1/nope"}}

	_, err := f.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestFetchExecutor_HostOutsideAllowedHostsIsPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewFetchExecutor("test-agent", time.Second, 0, 0)
	task := eventbus.TaskReady{
		Config: map[string]any{"url": srv.URL},
		Permissions: &workload.Permissions{
			Network: &workload.NetworkPermissions{AllowedHosts: []string{"*.example.com"}},
		},
	}

	_, err := f.Execute(context.Background(), task, nil)
	require.Error(t, err)
}

func TestFetchExecutor_HostWithinAllowedHostsSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := NewFetchExecutor("test-agent", time.Second, 0, 0)
	task := eventbus.TaskReady{
		Config: map[string]any{"url": srv.URL},
		Permissions: &workload.Permissions{
			Network: &workload.NetworkPermissions{AllowedHosts: []string{u.Hostname()}},
		},
	}

	result, err := f.Execute(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, "json", result.Format)
}

func TestFetchExecutor_MissingURLIsPermanentError(t *testing.T) {
	f := NewFetchExecutor("test-agent", time.Second, 0, 0)
	task := eventbus.TaskReady{Config: map[string]any{}}

	_, err := f.Execute(context.Background(), task, nil)
	require.Error(t, err)
}
