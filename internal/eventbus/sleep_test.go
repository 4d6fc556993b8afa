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

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDeadlineStore struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

func newMemDeadlineStore() *memDeadlineStore {
	return &memDeadlineStore{deadlines: make(map[string]time.Time)}
}

func (s *memDeadlineStore) SaveDeadline(key string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[key] = deadline
	return nil
}

func (s *memDeadlineStore) LoadDeadline(key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deadlines[key]
	return d, ok, nil
}

func TestSleep_PastDeadlineReturnsImmediately(t *testing.T) {
	store := newMemDeadlineStore()
	start := time.Now()
	err := Sleep(context.Background(), store, "run-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSleep_ResumesFromStoredDeadlineNotFreshOne(t *testing.T) {
	store := newMemDeadlineStore()
	original := time.Now().Add(50 * time.Millisecond)
	require.NoError(t, store.SaveDeadline("run-2", original))

	// Simulate a restart: call Sleep again with a much later "fresh"
	// deadline. The stored one must win, so the wait should still be short.
	start := time.Now()
	err := Sleep(context.Background(), store, "run-2", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.WithinDuration(t, original, start.Add(time.Since(start)), 200*time.Millisecond)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSleep_ContextCancellation(t *testing.T) {
	store := newMemDeadlineStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, store, "run-3", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}
