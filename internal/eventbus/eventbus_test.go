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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

var assertErr = errors.New("boom")

func TestPublishSubscribe_Basic(t *testing.T) {
	bus := New(nil)
	var got atomic.Value
	done := make(chan struct{})

	bus.Subscribe("task.ready", func(ctx context.Context, ev Event) error {
		got.Store(ev.Payload)
		close(done)
		return nil
	}, DefaultSubscribeOptions())

	_, err := bus.Publish(context.Background(), "task.ready", TaskReady{TaskID: "t1"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
	assert.Equal(t, "t1", got.Load().(TaskReady).TaskID)
}

func TestDedup_DuplicateEventIgnored(t *testing.T) {
	bus := New(nil)
	var calls int32

	wait := make(chan struct{}, 10)
	bus.Subscribe("task.completed", func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&calls, 1)
		wait <- struct{}{}
		return nil
	}, DefaultSubscribeOptions())

	require.NoError(t, bus.PublishWithID(context.Background(), "dup-1", "task.completed", TaskCompleted{TaskID: "t1"}))
	require.NoError(t, bus.PublishWithID(context.Background(), "dup-1", "task.completed", TaskCompleted{TaskID: "t1"}))

	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatal("first delivery never ran")
	}
	bus.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "duplicate event id must be delivered once")
}

func TestRetry_TransientErrorRetriesThenSucceeds(t *testing.T) {
	bus := New(nil)
	var attempts int32
	done := make(chan struct{})

	opts := DefaultSubscribeOptions()
	opts.InitialBackoff = time.Millisecond
	opts.MaxRetries = 5

	bus.Subscribe("task.ready", func(ctx context.Context, ev Event) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return &conductorerrors.TransientError{Cause: assertErr}
		}
		close(done)
		return nil
	}, opts)

	_, err := bus.Publish(context.Background(), "task.ready", TaskReady{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not eventually succeed")
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestRetry_PermanentErrorNeverRetries(t *testing.T) {
	bus := New(nil)
	var attempts int32
	wait := make(chan struct{})

	opts := DefaultSubscribeOptions()
	opts.InitialBackoff = time.Millisecond

	bus.Subscribe("task.ready", func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&attempts, 1)
		close(wait)
		return &conductorerrors.PermanentError{Cause: assertErr}
	}, opts)

	_, err := bus.Publish(context.Background(), "task.ready", TaskReady{})
	require.NoError(t, err)

	<-wait
	bus.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestConcurrencyCeiling_LimitsParallelHandlers(t *testing.T) {
	bus := New(nil)
	var active, maxActive int32

	opts := DefaultSubscribeOptions()
	opts.Concurrency = 2

	bus.Subscribe("task.ready", func(ctx context.Context, ev Event) error {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}, opts)

	for i := 0; i < 10; i++ {
		_, err := bus.Publish(context.Background(), "task.ready", TaskReady{TaskID: string(rune('a' + i))})
		require.NoError(t, err)
	}
	bus.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(2))
}
