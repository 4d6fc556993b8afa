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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
)

// FileError is one file's accumulated validation errors and warnings,
// keyed by path (§3: "Invalid files are loaded into a parallel Validation
// Error collection, keyed by file path").
type FileError struct {
	File     string
	Errors   []string
	Warnings []string
}

// Loader discovers, parses, and validates workload YAML files under two
// roots, maintaining an in-memory catalog and a parallel error collection.
// It is grounded on the teacher's directory-walking/definition-loading
// conventions (pkg/workflow/definition.go, pkg/workflow/validate.go),
// generalized to the two-root personal-shadows-example precedence rule.
type Loader struct {
	personalRoot string
	examplesRoot string
	logger       *slog.Logger

	mu       sync.RWMutex
	catalog  map[string]*Definition
	paths    map[string]string // id -> absolute file path
	fileErrs []FileError
}

// New constructs a Loader. Call Reload to populate the catalog; a fresh
// Loader has an empty catalog until the first Reload.
func New(personalRoot, examplesRoot string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		personalRoot: personalRoot,
		examplesRoot: examplesRoot,
		logger:       clog.WithComponent(logger, "loader"),
		catalog:      make(map[string]*Definition),
		paths:        make(map[string]string),
	}
}

// Get returns the workload with the given id, or nil if absent.
func (l *Loader) Get(id string) *Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog[id]
}

// List returns every workload currently in the catalog, sorted by id for
// deterministic output.
func (l *Loader) List() []*Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Definition, 0, len(l.catalog))
	for _, d := range l.catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PathOf returns the filesystem path backing the given workload id, or ""
// if unknown.
func (l *Loader) PathOf(id string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paths[id]
}

// PersonalRoot returns the writable root new/edited workloads are saved
// under (the REST façade never writes into examplesRoot).
func (l *Loader) PersonalRoot() string {
	return l.personalRoot
}

// Errors returns the current Validation Error collection.
func (l *Loader) Errors() []FileError {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]FileError, len(l.fileErrs))
	copy(out, l.fileErrs)
	return out
}

// Reload walks both roots and rebuilds the catalog. It is synchronous and
// idempotent: an unchanged filesystem produces a catalog equal to the
// previous one. Per-file errors never abort the reload, and a root that
// does not exist counts as empty; a failure to read an existing root
// leaves the previous catalog untouched and returns an error.
func (l *Loader) Reload() error {
	personalCatalog, personalPaths, personalErrs, err := l.scanRoot(l.personalRoot)
	if err != nil {
		l.logger.Error("reload failed reading personal root", "root", l.personalRoot, "error", err)
		return fmt.Errorf("scan personal root %s: %w", l.personalRoot, err)
	}
	exampleCatalog, examplePaths, exampleErrs, err := l.scanRoot(l.examplesRoot)
	if err != nil {
		l.logger.Error("reload failed reading examples root", "root", l.examplesRoot, "error", err)
		return fmt.Errorf("scan examples root %s: %w", l.examplesRoot, err)
	}

	catalog := make(map[string]*Definition, len(personalCatalog)+len(exampleCatalog))
	paths := make(map[string]string, len(personalPaths)+len(examplePaths))

	for id, def := range personalCatalog {
		catalog[id] = def
		paths[id] = personalPaths[id]
	}
	for id, def := range exampleCatalog {
		if _, shadowed := catalog[id]; shadowed {
			continue
		}
		catalog[id] = def
		paths[id] = examplePaths[id]
	}

	fileErrs := append(personalErrs, exampleErrs...)
	sort.Slice(fileErrs, func(i, j int) bool { return fileErrs[i].File < fileErrs[j].File })

	l.mu.Lock()
	l.catalog = catalog
	l.paths = paths
	l.fileErrs = fileErrs
	l.mu.Unlock()

	l.logger.Info("reload complete", "workloads", len(catalog), "errors", len(fileErrs))
	return nil
}

// scanRoot walks one root and parses every *.yaml/*.yml file under it. A
// missing root is treated as empty (not an error), so a deployment with
// no personal workloads yet still starts cleanly.
func (l *Loader) scanRoot(root string) (map[string]*Definition, map[string]string, []FileError, error) {
	catalog := make(map[string]*Definition)
	paths := make(map[string]string)
	var fileErrs []FileError

	if root == "" {
		return catalog, paths, fileErrs, nil
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return catalog, paths, fileErrs, nil
		}
		return nil, nil, nil, err
	}

	matches, err := doublestar.Glob(os.DirFS(root), "**/*.{yaml,yml}")
	if err != nil {
		return nil, nil, nil, err
	}

	for _, rel := range matches {
		full := filepath.Join(root, rel)
		data, err := os.ReadFile(full)
		if err != nil {
			fileErrs = append(fileErrs, FileError{File: full, Errors: []string{err.Error()}})
			continue
		}

		def, err := ParseDefinition(data)
		if err != nil {
			fileErrs = append(fileErrs, FileError{File: full, Errors: []string{fmt.Sprintf("parse error: %s", err.Error())}})
			continue
		}

		if err := def.Validate(); err != nil {
			fileErrs = append(fileErrs, FileError{File: full, Errors: []string{err.Error()}})
			continue
		}

		if warnings := detectEmbeddedSecrets(def); len(warnings) > 0 {
			fileErrs = append(fileErrs, FileError{File: full, Warnings: warnings})
		}

		if existing, dup := catalog[def.ID]; dup {
			fileErrs = append(fileErrs, FileError{File: full, Errors: []string{
				fmt.Sprintf("duplicate workload id %q also defined at %s", def.ID, paths[existing.ID]),
			}})
			continue
		}

		catalog[def.ID] = def
		paths[def.ID] = full
	}

	return catalog, paths, fileErrs, nil
}

// detectEmbeddedSecrets warns (non-blocking) when a step config appears to
// embed a plaintext credential, mirroring the teacher's
// DetectEmbeddedCredentials (pkg/workflow/validate.go) narrowed to this
// schema's flat config maps.
func detectEmbeddedSecrets(def *Definition) []string {
	var warnings []string
	for _, s := range def.Steps {
		for key, v := range s.Config {
			str, ok := v.(string)
			if !ok {
				continue
			}
			lowerKey := strings.ToLower(key)
			if strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "secret") {
				if str != "" && !strings.HasPrefix(str, "{{") {
					warnings = append(warnings, fmt.Sprintf("step %s config.%s looks like an embedded credential; pass it via input instead", s.ID, key))
				}
			}
		}
	}
	return warnings
}
