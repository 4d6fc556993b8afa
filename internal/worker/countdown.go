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
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// durationPattern parses the "1h30m15s" form (days, hours, minutes,
// seconds) the spec describes (§4.3.3) — broader than time.ParseDuration,
// which doesn't accept a "d" (days) unit, grounded in spirit on the
// teacher's internal/action/utility/sleep.go duration parsing.
var durationPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

func parseCountdownDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "" {
		return 0, fmt.Errorf("countdown: invalid duration %q", s)
	}
	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	any := false
	for i, group := range m[1:] {
		if group == "" {
			continue
		}
		any = true
		n, err := strconv.Atoi(group)
		if err != nil {
			return 0, fmt.Errorf("countdown: invalid duration %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	if !any {
		return 0, fmt.Errorf("countdown: invalid duration %q", s)
	}
	return total, nil
}

// CountdownExecutor implements the COUNTDOWN worker (§4.3.3): sleeps via the
// event bus's durable-sleep primitive so a restart resumes from the
// original deadline instead of restarting the wait.
type CountdownExecutor struct {
	deadlines eventbus.DeadlineStore
}

// NewCountdownExecutor constructs a CountdownExecutor backed by deadlines
// (manifest.DeadlineStore in production).
func NewCountdownExecutor(deadlines eventbus.DeadlineStore) *CountdownExecutor {
	return &CountdownExecutor{deadlines: deadlines}
}

func (c *CountdownExecutor) Name() string { return workload.WorkerCountdown }

type countdownOutput struct {
	Success     bool      `json:"success"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	WaitedMs    int64     `json:"waitedMs"`
	WaitedHuman string    `json:"waitedHuman"`
	Mode        string    `json:"mode"`
	Target      string    `json:"target"`
	Message     string    `json:"message,omitempty"`
}

func (c *CountdownExecutor) Execute(ctx context.Context, task eventbus.TaskReady, _ map[string]InputFile) (Result, error) {
	started := time.Now()

	var deadline time.Time
	var mode, target string

	if until := configString(task.Config, "until"); until != "" {
		parsed, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return Result{}, &conductorerrors.PermanentError{Cause: fmt.Errorf("countdown: invalid until timestamp: %w", err)}
		}
		deadline = parsed
		mode = "until"
		target = until
	} else if dur := configString(task.Config, "duration"); dur != "" {
		parsed, err := parseCountdownDuration(dur)
		if err != nil {
			return Result{}, &conductorerrors.PermanentError{Cause: err}
		}
		deadline = started.Add(parsed)
		mode = "duration"
		target = dur
	} else {
		return Result{}, &conductorerrors.PermanentError{Cause: fmt.Errorf("countdown: exactly one of duration or until is required")}
	}

	key := filepath.Join(task.RunPath, task.TaskID)
	if err := eventbus.Sleep(ctx, c.deadlines, key, deadline); err != nil {
		return Result{}, &conductorerrors.TransientError{Cause: err}
	}

	completed := time.Now()
	waited := completed.Sub(started)

	out := countdownOutput{
		Success:     true,
		StartedAt:   started,
		CompletedAt: completed,
		WaitedMs:    waited.Milliseconds(),
		WaitedHuman: waited.Round(time.Second).String(),
		Mode:        mode,
		Target:      target,
		Message:     configString(task.Config, "message"),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Format: "json"}, nil
}
