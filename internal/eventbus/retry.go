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

package eventbus

import (
	"errors"

	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// isRetryable reports whether a handler error should be retried. A
// PermanentError (invalid config, sandbox violation, unparseable input)
// or a ValidationError never is; everything else — including a bare error
// and an explicit TransientError — is, up to the subscription's retry
// budget.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *conductorerrors.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var valid *conductorerrors.ValidationError
	if errors.As(err, &valid) {
		return false
	}
	return true
}
