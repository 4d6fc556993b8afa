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

// currentMatchTolerance is the tolerance window used to decide whether
// "now" is itself a cron occurrence (§4.5, design note §9 Open Question:
// this is taken as the entire contract, nothing more).
const currentMatchTolerance = time.Second

// firingDecision is the result of applying the missed-execution policy to
// one schedule on one tick.
type firingDecision struct {
	fireCount int
	missed    int
	capped    bool
}

// decideFirings implements step 3 of §4.5's tick algorithm.
func decideFirings(cronExpr *CronExpr, lastRunAt, now time.Time, policy string, safetyCap int) firingDecision {
	missedOccurrences, capped := cronExpr.Occurrences(lastRunAt, now, safetyCap)
	missed := len(missedOccurrences)

	currentMatches := isCurrentMatch(cronExpr, now)

	switch policy {
	case PolicyCatchup:
		fires := missed
		if currentMatches {
			fires++
		}
		return firingDecision{fireCount: fires, missed: missed, capped: capped}

	case PolicyLast:
		if missed > 0 {
			return firingDecision{fireCount: 1, missed: missed, capped: capped}
		}
		if currentMatches {
			return firingDecision{fireCount: 1, missed: missed, capped: capped}
		}
		return firingDecision{fireCount: 0, missed: missed, capped: capped}

	case PolicySkip, PolicyLog:
		if currentMatches {
			return firingDecision{fireCount: 1, missed: missed, capped: capped}
		}
		return firingDecision{fireCount: 0, missed: missed, capped: capped}

	default:
		// Unrecognized policy behaves like the documented default, "log".
		if currentMatches {
			return firingDecision{fireCount: 1, missed: missed, capped: capped}
		}
		return firingDecision{fireCount: 0, missed: missed, capped: capped}
	}
}

// isCurrentMatch reports whether now (rounded to the minute) equals the
// cron's last occurrence at-or-before now, within a 1-second tolerance.
func isCurrentMatch(cronExpr *CronExpr, now time.Time) bool {
	occurrence := cronExpr.Prev(now)
	if occurrence.IsZero() {
		return false
	}
	rounded := now.Truncate(time.Minute)
	diff := rounded.Sub(occurrence)
	if diff < 0 {
		diff = -diff
	}
	return diff <= currentMatchTolerance
}
