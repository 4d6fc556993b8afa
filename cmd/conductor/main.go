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

// Command conductor is a thin CLI client over the daemon's REST façade,
// grounded on the teacher's cmd/conductor/main.go + internal/cli root
// command (Cobra command tree, persistent --server/--json flags) but
// narrowed to the handful of operations an engineer needs without the
// GUI: submit a run, validate a workload file, and list schedules.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var serverAddr string

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "conductor",
		Short:         "Thin CLI client for the workload orchestrator daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8787", "Address of the conductord REST façade")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newSchedulesCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("conductor %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "run <workload-id>",
		Short: "Submit a workload run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := map[string]any{}
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid --param %q, expected key=value", p)
				}
				input[k] = v
			}
			body, err := json.Marshal(input)
			if err != nil {
				return err
			}
			resp, err := http.Post(serverAddr+"/run/"+args[0], "application/json", strings.NewReader(string(body)))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "Input parameter as key=value (repeatable)")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workload YAML file against the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			id := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			resp, err := http.Post(serverAddr+"/workloads/"+id+"/validate", "application/yaml", strings.NewReader(string(data)))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
}

func newSchedulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Manage cron schedules",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(serverAddr + "/schedules")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "upcoming",
		Short: "Show next/previous occurrences for enabled schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(serverAddr + "/schedules/upcoming")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	})
	return cmd
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	var prettyList []any
	if err := json.Unmarshal(body, &prettyList); err == nil {
		out, _ := json.MarshalIndent(prettyList, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(string(body))
	return nil
}
