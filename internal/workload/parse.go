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
	"gopkg.in/yaml.v3"
)

// ParseDefinition decodes raw YAML into a Definition. It does not call
// Validate; callers that need a fully-checked definition should call
// Validate explicitly (the loader does, keeping parse and validate
// separately testable).
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Serialize re-encodes a Definition as YAML, used by the round-trip
// testable property (spec.md §8) and by the REST façade's PUT handler.
func Serialize(def *Definition) ([]byte, error) {
	return yaml.Marshal(def)
}
