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

package manifest

import (
	"fmt"
	"time"
)

// NewInstanceID builds the `<workloadId>-YYYY-MM-DD-HHMMSS` instance id
// (§3 Workload Instance), local time, zero-padded.
func NewInstanceID(workloadID string, at time.Time) string {
	return fmt.Sprintf("%s-%s", workloadID, at.Local().Format("2006-01-02-150405"))
}
