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

// RunMinuteTicker invokes fn once per wall-clock minute boundary (§5.1's
// "cron triggers at 1-minute granularity"), starting with the next
// boundary after it is started, until ctx is cancelled. fn receives the
// wall-clock time the tick fired for, not time.Now() at invocation — the
// two may differ slightly under scheduling jitter, and callers (the
// scheduler) reason about the former.
func RunMinuteTicker(ctx context.Context, fn func(tick time.Time)) {
	for {
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))

		select {
		case tick := <-timer.C:
			_ = tick
			fn(next)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
