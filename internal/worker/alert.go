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

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
	conductorerrors "github.com/HemSoft/hs-conductor-sub000/pkg/errors"
)

// Deliverer delivers one alert to one channel. Channels are
// "implementation-defined system integrations, treated here as opaque"
// (§4.3.4); this module supplies toast/sound stand-ins (the real GUI
// integration is an external collaborator per spec.md §1 Non-goals) and a
// concrete log channel, mirroring the shape of the teacher's integration
// family (internal/integration/slack, internal/integration/pagerduty) —
// one concrete type per channel behind a common interface.
type Deliverer interface {
	Channel() string
	Deliver(ctx context.Context, alert AlertDescriptor) error
}

// AlertDescriptor is the JSON document persisted by the log channel
// (§4.3.4).
type AlertDescriptor struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Priority     string    `json:"priority,omitempty"`
	Source       AlertSrc  `json:"source"`
	CreatedAt    time.Time `json:"createdAt"`
	Acknowledged bool      `json:"acknowledged"`
}

// AlertSrc identifies the plan/task that raised the alert.
type AlertSrc struct {
	PlanID string `json:"planId"`
	TaskID string `json:"taskId"`
}

// ToastDeliverer stands in for the GUI's toast notification surface: an
// external collaborator this module cannot reach directly, so delivery is
// recorded as a successful best-effort dispatch.
type ToastDeliverer struct{}

func (ToastDeliverer) Channel() string { return "toast" }
func (ToastDeliverer) Deliver(ctx context.Context, a AlertDescriptor) error { return nil }

// SoundDeliverer stands in for the GUI's sound-cue surface, same rationale
// as ToastDeliverer.
type SoundDeliverer struct{}

func (SoundDeliverer) Channel() string { return "sound" }
func (SoundDeliverer) Deliver(ctx context.Context, a AlertDescriptor) error { return nil }

// LogDeliverer is the one channel this module actually owns: it persists
// the alert descriptor under <data>/alerts/<alertId>.json (§4.3.4).
type LogDeliverer struct {
	AlertsDir string
}

func (LogDeliverer) Channel() string { return "log" }

func (l LogDeliverer) Deliver(ctx context.Context, a AlertDescriptor) error {
	if err := os.MkdirAll(l.AlertsDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	target := filepath.Join(l.AlertsDir, a.ID+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// AlertExecutor implements the ALERT worker (§4.3.4).
type AlertExecutor struct {
	deliverers map[string]Deliverer
}

// NewAlertExecutor constructs an AlertExecutor wired to the given channel
// deliverers, keyed by channel name ("toast", "sound", "log").
func NewAlertExecutor(deliverers map[string]Deliverer) *AlertExecutor {
	return &AlertExecutor{deliverers: deliverers}
}

func (e *AlertExecutor) Name() string { return workload.WorkerAlert }

type alertChannelStatus struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type alertOutput struct {
	Success  bool                 `json:"success"`
	AlertID  string               `json:"alertId"`
	Channels []alertChannelStatus `json:"channels"`
}

func (e *AlertExecutor) Execute(ctx context.Context, task eventbus.TaskReady, _ map[string]InputFile) (Result, error) {
	title := configString(task.Config, "title")
	message := configString(task.Config, "message")
	if title == "" || message == "" {
		return Result{}, &conductorerrors.PermanentError{Cause: fmt.Errorf("alert: title and message are required")}
	}

	alertType := configString(task.Config, "type")
	if alertType == "" {
		alertType = "toast"
	}

	channels, err := channelsFor(alertType)
	if err != nil {
		return Result{}, &conductorerrors.PermanentError{Cause: err}
	}

	descriptor := AlertDescriptor{
		ID:       uuid.NewString(),
		Title:    title,
		Message:  message,
		Priority: configString(task.Config, "priority"),
		Source:   AlertSrc{PlanID: task.PlanID, TaskID: task.TaskID},
		CreatedAt: time.Now().UTC(),
	}

	out := alertOutput{AlertID: descriptor.ID}
	for _, ch := range channels {
		d, ok := e.deliverers[ch]
		if !ok {
			out.Channels = append(out.Channels, alertChannelStatus{Channel: ch, Success: false, Error: "unknown channel"})
			continue
		}
		if err := d.Deliver(ctx, descriptor); err != nil {
			out.Channels = append(out.Channels, alertChannelStatus{Channel: ch, Success: false, Error: err.Error()})
			continue
		}
		out.Channels = append(out.Channels, alertChannelStatus{Channel: ch, Success: true})
		out.Success = true
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Format: "json"}, nil
}

func channelsFor(alertType string) ([]string, error) {
	switch alertType {
	case "toast", "sound", "log":
		return []string{alertType}, nil
	case "all":
		return []string{"toast", "sound", "log"}, nil
	default:
		return nil, fmt.Errorf("alert: unknown type %q", alertType)
	}
}
