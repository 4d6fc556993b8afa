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

import "time"

// Upcoming is one enabled cron schedule's progress-bar data, returned by
// the REST façade's GET /schedules/upcoming (§4.5 "Upcoming queries").
type Upcoming struct {
	ScheduleID string
	Name       string
	Next       time.Time
	Previous   time.Time
}

// Upcoming enumerates, for every enabled cron schedule, the next
// occurrence and the most recent previous occurrence relative to now.
// This computation is stateless; it reuses the same CronExpr evaluator
// the scheduler's tick uses and does not mutate any schedule record.
func (s *Scheduler) Upcoming(now time.Time) ([]Upcoming, error) {
	records, err := s.store.List()
	if err != nil {
		return nil, err
	}

	var out []Upcoming
	for _, r := range records {
		if !r.Enabled || r.Cron == "" {
			continue
		}
		cronExpr, err := ParseCron(r.Cron)
		if err != nil {
			continue
		}
		out = append(out, Upcoming{
			ScheduleID: r.ID,
			Name:       r.Name,
			Next:       cronExpr.Next(now),
			Previous:   cronExpr.Prev(now),
		})
	}
	return out, nil
}
