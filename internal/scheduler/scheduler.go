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

package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
)

// defaultSafetyCap is the default ceiling on missed-occurrence enumeration
// (§4.5 [ADDED] Safety cap), above the spec's floor of 1000.
const defaultSafetyCap = 1500

// TickResult is the per-tick statistics returned by Tick (§4.5 step 5).
type TickResult struct {
	Triggered      int
	ScheduleIDs    []string
	MissedSummary  map[string]int // scheduleId -> missed occurrence count
	CappedSchedule map[string]bool
}

// Scheduler scans schedule records every minute, detects due and missed
// occurrences, applies the missed-execution policy, and emits
// workload.trigger events onto the bus.
type Scheduler struct {
	store     *RecordStore
	bus       *eventbus.Bus
	safetyCap int
	logger    *slog.Logger
}

// New constructs a Scheduler. safetyCap <= 0 uses defaultSafetyCap.
func New(store *RecordStore, bus *eventbus.Bus, safetyCap int, logger *slog.Logger) *Scheduler {
	if safetyCap <= 0 {
		safetyCap = defaultSafetyCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     store,
		bus:       bus,
		safetyCap: safetyCap,
		logger:    clog.WithComponent(logger, "scheduler"),
	}
}

// Run starts the minute-aligned tick loop and blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	eventbus.RunMinuteTicker(ctx, func(tick time.Time) {
		result, err := s.Tick(ctx, tick)
		if err != nil {
			s.logger.Error("tick failed", "error", err)
			return
		}
		s.logger.Info("tick complete", "triggered", result.Triggered, "schedules", result.ScheduleIDs)
	})
}

// Tick runs one scan-and-fire pass for wall-clock time now (§4.5).
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	result := TickResult{
		MissedSummary:  make(map[string]int),
		CappedSchedule: make(map[string]bool),
	}

	records, err := s.store.List()
	if err != nil {
		return result, err
	}

	for _, r := range records {
		if !r.Enabled || r.Cron == "" {
			continue
		}

		cronExpr, err := ParseCron(r.Cron)
		if err != nil {
			// Scheduler error (§7): logged, schedule skipped this tick, no
			// retroactive mutation of lastRunAt.
			s.logger.Warn("invalid cron expression, skipping schedule this tick", "schedule_id", r.ID, "cron", r.Cron, "error", err)
			continue
		}

		lastRunAt := r.LastRunAt
		var baseline time.Time
		if lastRunAt != nil {
			baseline = *lastRunAt
		} else {
			// Never run before: nothing is "missed", only a current match
			// can fire.
			baseline = now
		}

		policy := r.MissedExecutionPolicy
		if policy == "" {
			policy = PolicyLog
		}

		decision := decideFirings(cronExpr, baseline, now, policy, s.safetyCap)
		if decision.missed > 0 {
			result.MissedSummary[r.ID] = decision.missed
			if decision.capped {
				result.CappedSchedule[r.ID] = true
				s.logger.Warn("missed-occurrence enumeration hit safety cap", "schedule_id", r.ID, "cap", s.safetyCap)
			}
			if policy == PolicyLog {
				s.logger.Info("missed executions detected, policy=log", "schedule_id", r.ID, "missed", decision.missed)
			}
		}

		if decision.fireCount == 0 {
			continue
		}

		for i := 0; i < decision.fireCount; i++ {
			if _, err := s.bus.Publish(ctx, eventbus.TopicWorkloadTrigger, eventbus.WorkloadTrigger{
				ScheduleID:   r.ID,
				ScheduleName: r.Name,
				WorkloadID:   r.WorkloadID,
				Params:       r.Params,
			}); err != nil {
				s.logger.Error("failed to publish workload.trigger", "schedule_id", r.ID, "error", err)
				continue
			}
			result.Triggered++
		}
		result.ScheduleIDs = append(result.ScheduleIDs, r.ID)

		if err := s.store.touchLastRunAt(r.ID, now); err != nil {
			s.logger.Error("failed to update lastRunAt", "schedule_id", r.ID, "error", err)
		}
	}

	return result, nil
}
