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
	"os"
	"path/filepath"
	"strings"
	"time"
)

// staleAfter is the threshold past which a manifest-less "pending" run is
// considered orphaned (§4.2 "Derived run status").
const staleAfter = 5 * time.Minute

// DerivedStatus infers a status for a run directory with no manifest
// (legacy or partial runs), per §4.2. This is a best-effort read path for
// the REST façade only; new code always writes the manifest eagerly and
// must never depend on this (design note §9).
func DerivedStatus(runDir string, dirModTime time.Time) (string, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "result.") {
			return StatusCompleted, nil
		}
		if strings.HasSuffix(name, ".md") && !strings.EqualFold(name, "README.md") {
			return StatusCompleted, nil
		}
	}

	if time.Since(dirModTime) > staleAfter {
		return StatusFailed, nil
	}
	return StatusPending, nil
}

// ManifestPath returns the path run.json would live at for runDir, for
// callers (the REST façade) deciding whether to fall back to
// DerivedStatus.
func ManifestPath(runDir string) string {
	return filepath.Join(runDir, manifestFileName)
}
