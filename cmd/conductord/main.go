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

// Command conductord runs the engine daemon: the event bus, the five
// typed workers, the plan orchestrator, the cron scheduler, and the REST
// façade. Grounded on the teacher's cmd/conductord/main.go (flag parsing,
// signal-driven graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HemSoft/hs-conductor-sub000/internal/config"
	"github.com/HemSoft/hs-conductor-sub000/internal/eventbus"
	"github.com/HemSoft/hs-conductor-sub000/internal/executor"
	"github.com/HemSoft/hs-conductor-sub000/internal/llmbackend"
	clog "github.com/HemSoft/hs-conductor-sub000/internal/log"
	"github.com/HemSoft/hs-conductor-sub000/internal/manifest"
	"github.com/HemSoft/hs-conductor-sub000/internal/orchestrator"
	"github.com/HemSoft/hs-conductor-sub000/internal/rest"
	"github.com/HemSoft/hs-conductor-sub000/internal/auth"
	"github.com/HemSoft/hs-conductor-sub000/internal/scheduler"
	"github.com/HemSoft/hs-conductor-sub000/internal/worker"
	"github.com/HemSoft/hs-conductor-sub000/internal/workload"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to base config file")
		envFile     = flag.String("env-config", "", "Path to environment overlay config file")
		port        = flag.Int("port", 0, "REST façade listen port (overrides config)")
		workloadDir = flag.String("workloads-dir", "", "Personal workloads directory (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("conductord %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := clog.New(clog.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *workloadDir != "" {
		cfg.Paths.Workloads = *workloadDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	bus := eventbus.New(logger)
	defer bus.Close()

	store := manifest.NewStore()

	loader := workload.New(cfg.Paths.Workloads, cfg.Paths.Examples, logger)
	if err := loader.Reload(); err != nil {
		return fmt.Errorf("initial workload load: %w", err)
	}
	for _, fe := range loader.Errors() {
		logger.Warn("workload file has errors", "file", fe.File, "errors", fe.Errors)
	}

	backend := selectBackend(cfg)

	deliverers := map[string]worker.Deliverer{
		"toast": worker.ToastDeliverer{},
		"sound": worker.SoundDeliverer{},
		"log":   worker.LogDeliverer{AlertsDir: alertsRoot(cfg)},
	}

	dispatcher := worker.NewDispatcher(bus, store, logger, cfg.Paths.AllowedWritePath)
	dispatcher.Register(worker.NewAIExecutor(backend, cfg.AI.DefaultModel, deliverers, logger), cfg.AI.Concurrency, cfg.AI.Retries)
	dispatcher.Register(worker.NewFetchExecutor(cfg.Workers.Fetch.UserAgent, time.Duration(cfg.Workers.Fetch.Timeout)*time.Millisecond, 1, 3), 4, 2)
	dispatcher.Register(worker.NewExecExecutor(cfg.Workers.Exec.Shell, time.Duration(cfg.Workers.Exec.Timeout)*time.Millisecond), 4, 0)
	dispatcher.Register(worker.NewCountdownExecutor(manifest.DeadlineStore{}), 8, 0)
	dispatcher.Register(worker.NewAlertExecutor(deliverers), 4, 1)

	taskTimeout := time.Duration(cfg.Orchestrator.TaskTimeoutSeconds) * time.Second
	orch := orchestrator.New(bus, store, taskTimeout, logger)
	orch.Start()

	recoverRunningPlans(ctx, cfg, store, loader, orch, logger)

	exec := executor.New(runsRoot(cfg), store, bus)

	recordStore := scheduler.NewRecordStore(schedulesRoot(cfg))
	sched := scheduler.New(recordStore, bus, cfg.Scheduler.SafetyCap, logger)
	go sched.Run(ctx)

	subscribeWorkloadTrigger(bus, loader, exec, logger)

	if cfg.Workloads.WatchEnabled {
		go func() {
			if err := loader.Watch(ctx, time.Duration(cfg.Workloads.WatchDebounceMillis)*time.Millisecond); err != nil {
				logger.Error("workload watch stopped", "error", err)
			}
		}()
	}

	srv := rest.New(rest.Deps{
		Workloads: loader,
		Executor:  exec,
		Runs:      rest.RunsRoot{Dir: runsRoot(cfg), Store: store},
		Schedules: rest.ScheduleService{Records: recordStore, Scheduler: sched},
		CORSOrigin: cfg.Server.CORSOrigin,
		Auth: auth.Config{
			Secret:    []byte(cfg.Server.Auth.Secret),
			Issuer:    cfg.Server.Auth.Issuer,
			ClockSkew: time.Duration(cfg.Server.Auth.ClockSkewSecs) * time.Second,
			Disabled:  cfg.Server.Auth.Disabled,
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("REST façade listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func selectBackend(cfg config.Config) llmbackend.Backend {
	if cfg.AI.UseMock {
		return llmbackend.MockBackend{}
	}
	cli := llmbackend.NewCLIBackend("claude")
	if cli.Detect() {
		return cli
	}
	return llmbackend.MockBackend{}
}

func runsRoot(cfg config.Config) string {
	return cfg.Paths.Data + "/runs"
}

func schedulesRoot(cfg config.Config) string {
	return cfg.Paths.Data + "/schedules"
}

func alertsRoot(cfg config.Config) string {
	return cfg.Paths.Data + "/alerts"
}

// alertTrigger converts a workload's optional alert configuration into the
// bus payload shape Recover needs, mirroring internal/executor's own
// conversion for a freshly submitted run.
func alertTrigger(def *workload.Definition) *eventbus.AlertTrigger {
	if def.Alert == nil {
		return nil
	}
	return &eventbus.AlertTrigger{
		Condition: def.Alert.Condition,
		Title:     def.Alert.Title,
		Message:   def.Alert.Message,
		Type:      def.Alert.Type,
		Priority:  def.Alert.Priority,
	}
}

// recoverRunningPlans re-seeds the orchestrator's in-memory cache for any
// run directory whose manifest was still "running" when the daemon last
// stopped (§4.2: run.json is the sole source of truth; the orchestrator's
// planState map is only ever a cache of it). A run whose workload
// definition has since been deleted is logged and left for manual
// inspection rather than abandoned automatically.
func recoverRunningPlans(ctx context.Context, cfg config.Config, store *manifest.Store, loader *workload.Loader, orch *orchestrator.Orchestrator, logger *slog.Logger) {
	entries, err := os.ReadDir(runsRoot(cfg))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := runsRoot(cfg) + "/" + e.Name()
		m, err := store.Read(runDir)
		if err != nil || m.Status != manifest.StatusRunning {
			continue
		}
		def := loader.Get(m.WorkloadID)
		if def == nil {
			logger.Warn("cannot recover run: workload definition no longer exists", "instance_id", m.InstanceID, "workload_id", m.WorkloadID)
			continue
		}
		steps := make([]eventbus.PlanStep, 0, len(def.Steps))
		for _, s := range def.Steps {
			steps = append(steps, eventbus.PlanStep{
				ID: s.ID, Name: s.Name, Worker: s.Worker, Config: s.Config,
				Input: s.Input, Output: s.Output, DependsOn: s.DependsOn, Condition: s.Condition,
			})
		}
		if err := orch.Recover(ctx, runDir, runDir, steps, m.Input, alertTrigger(def), def.Permissions); err != nil {
			logger.Error("failed to recover run", "instance_id", m.InstanceID, "error", err)
		}
	}
}

// subscribeWorkloadTrigger wires the scheduler's fire-and-forget trigger
// event to the Executor, the same seam an external GUI's "run now" button
// uses via POST /run/:id (§4.5 "Firing a schedule").
func subscribeWorkloadTrigger(bus *eventbus.Bus, loader *workload.Loader, exec *executor.Executor, logger *slog.Logger) {
	bus.Subscribe(eventbus.TopicWorkloadTrigger, func(ctx context.Context, ev eventbus.Event) error {
		trigger := ev.Payload.(eventbus.WorkloadTrigger)
		def := loader.Get(trigger.WorkloadID)
		if def == nil {
			logger.Error("scheduled trigger references unknown workload", "workload_id", trigger.WorkloadID, "schedule_id", trigger.ScheduleID)
			return nil
		}
		if _, err := exec.Submit(ctx, def, trigger.Params); err != nil {
			logger.Error("failed to submit scheduled run", "workload_id", trigger.WorkloadID, "schedule_id", trigger.ScheduleID, "error", err)
		}
		return nil
	}, eventbus.DefaultSubscribeOptions())
}
