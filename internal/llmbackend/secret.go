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

package llmbackend

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const keyringService = "conductor-ai-backend"

// APIKey resolves an AI backend API key for account, preferring the OS
// keychain (so a key never has to sit in a config file or shell profile)
// and falling back to the named environment variable when no keychain
// entry exists or the platform has none (e.g. a headless CI runner).
func APIKey(account, envVar string) (string, error) {
	secret, err := keyring.Get(keyringService, account)
	if err == nil && secret != "" {
		return secret, nil
	}

	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("no API key for %s: not in OS keychain (%w) and %s is unset", account, err, envVar)
}

// SaveAPIKey stores an AI backend API key in the OS keychain.
func SaveAPIKey(account, secret string) error {
	return keyring.Set(keyringService, account, secret)
}
