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

package orchestrator

import (
	"fmt"
	"regexp"
)

// paramPattern matches {{param}} placeholders (§3, §4.4 step 3). Unlike
// the teacher's pkg/workflow.ResolveTemplate, which parses full Go
// template syntax ({{.steps.x.response}}), interpolation here is a flat
// substitution of a bare name against the instance input map -- the spec
// defines no dotted-path or function-call grammar, so a regexp
// replacement is the whole of it.
var paramPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// interpolateConfig walks cfg recursively, replacing {{param}} in every
// string value (including strings nested inside arrays and nested maps)
// with the corresponding entry of input, string-coerced. Non-string
// values pass through unchanged.
func interpolateConfig(cfg map[string]any, input map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = interpolateValue(v, input)
	}
	return out
}

func interpolateValue(v any, input map[string]any) any {
	switch val := v.(type) {
	case string:
		return interpolateString(val, input)
	case map[string]any:
		return interpolateConfig(val, input)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, input)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateString(item, input)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, input map[string]any) string {
	return paramPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := paramPattern.FindStringSubmatch(match)[1]
		val, ok := input[name]
		if !ok {
			return match // unknown placeholder left verbatim, matching the teacher's graceful-degradation behavior
		}
		return stringify(val)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
