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

package workload

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an optional filesystem watch over both loader roots,
// grounded on the teacher's debounced watch service
// (internal/controller/filewatcher/service.go): writes, creates, renames,
// and removes of *.yaml/*.yml files trigger a debounced Reload instead of
// requiring an explicit REST /reload call every time. Reload's contract is
// unaffected — it remains synchronous and idempotent; this is purely an
// additional trigger path. Watch blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range []string{l.personalRoot, l.examplesRoot} {
		if root == "" {
			continue
		}
		if err := addRecursive(watcher, root); err != nil {
			l.logger.Warn("watch: failed to add root", "root", root, "error", err)
		}
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(ev.Name) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					if err := l.Reload(); err != nil {
						l.logger.Error("watch-triggered reload failed", "error", err)
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watch error", "error", err)
		}
	}
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

// addRecursive walks dir and registers every subdirectory with watcher,
// since fsnotify does not watch recursively on its own.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
