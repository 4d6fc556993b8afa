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
	"time"
)

// DeadlineStore persists a single durable-sleep deadline so a waiting
// handler can recompute its remaining wait after a process restart. The
// COUNTDOWN worker backs this with the run manifest store (the deadline is
// written into the run directory, per design note §9); tests can use an
// in-memory stub.
type DeadlineStore interface {
	SaveDeadline(key string, deadline time.Time) error
	LoadDeadline(key string) (deadline time.Time, ok bool, err error)
}

// Sleep blocks until deadline, or until ctx is cancelled. It first
// consults store for a previously-saved deadline under key; if one exists
// it is honored instead of the supplied deadline, so that a process
// restarted mid-sleep resumes waiting for the original target time rather
// than starting a fresh countdown. If no deadline is stored yet, the
// supplied deadline is persisted before waiting.
//
// Sleep is idempotent: calling it again with a deadline already in the
// past returns immediately.
func Sleep(ctx context.Context, store DeadlineStore, key string, deadline time.Time) error {
	target := deadline
	if stored, ok, err := store.LoadDeadline(key); err == nil && ok {
		target = stored
	} else if err := store.SaveDeadline(key, deadline); err != nil {
		return err
	}

	remaining := time.Until(target)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
