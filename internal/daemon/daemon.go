// Copyright 2025 Buildarr Contributors
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

// Package daemon keeps the system continuously reconciled: it performs an
// immediate pipeline run on start, then repeats runs on a weekday+time
// schedule, on configuration file changes, and on an explicit reload
// signal.
//
// The daemon is single-threaded with respect to pipeline execution: one
// blocking wait on the next of {timer, file event, signal}, and at most
// one pending trigger while a run is in progress. A failed run is logged
// and never terminates the daemon or stops file watching.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildarr/buildarr/internal/config"
	"github.com/buildarr/buildarr/internal/log"
	"github.com/buildarr/buildarr/internal/pipeline"
)

// Overrides are command line overrides of configuration file values.
type Overrides struct {
	// WatchConfig overrides buildarr.watch_config when non-nil.
	WatchConfig *bool
	// UpdateDays overrides buildarr.update_days when non-empty.
	UpdateDays []config.Weekday
	// UpdateTimes overrides buildarr.update_times when non-empty.
	UpdateTimes []config.TimeOfDay
}

// Daemon drives repeated pipeline runs over the process lifetime.
type Daemon struct {
	// ConfigPath is the configuration file to load and reload.
	ConfigPath string

	// Overrides are command line overrides applied after every (re)load.
	Overrides Overrides

	// Logger is the base logger. Defaults to slog.Default.
	Logger *slog.Logger

	// LoadConfig loads the configuration. Defaults to config.Load.
	LoadConfig func(path string) (*config.Config, error)

	// RunPipeline executes one reconciliation pass. Defaults to the
	// given pipeline runner.
	RunPipeline func(ctx context.Context, cfg *config.Config) (*pipeline.Result, error)

	// reloadCh overrides the SIGHUP subscription in tests.
	reloadCh chan os.Signal

	// debounce overrides the file event debounce window in tests.
	debounce time.Duration

	// now overrides the clock in tests.
	now func() time.Time
}

// New wires a daemon to a pipeline runner.
func New(configPath string, runner *pipeline.Runner, overrides Overrides, logger *slog.Logger) *Daemon {
	return &Daemon{
		ConfigPath:  configPath,
		Overrides:   overrides,
		Logger:      logger,
		LoadConfig:  config.Load,
		RunPipeline: runner.Run,
	}
}

// Run executes the daemon until the context is cancelled.
//
// A fatal configuration error during the initial load or initial run is
// returned and the scheduler loop never starts. After that point, run
// errors are logged and the daemon keeps scheduling and watching.
func (d *Daemon) Run(ctx context.Context) error {
	logger := d.logger()

	cfg, spec, err := d.load()
	if err != nil {
		return err
	}
	d.logSchedule(logger, spec)

	logger.Info("Applying initial configuration")
	if err := d.runOnce(ctx, cfg, "startup"); err != nil {
		return fmt.Errorf("initial run failed: %w", err)
	}

	reloadCh := d.reloadCh
	if reloadCh == nil {
		reloadCh = make(chan os.Signal, 1)
		signal.Notify(reloadCh, syscall.SIGHUP)
		defer signal.Stop(reloadCh)
	}

	w, err := d.startWatcher(cfg, spec, logger)
	if err != nil {
		return err
	}
	defer func() {
		if w != nil {
			w.Close()
		}
	}()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		timer = d.armTimer(timer, spec, logger)
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}
		var eventsCh <-chan string
		if w != nil {
			eventsCh = w.Events()
		}
		logger.Info("Buildarr ready")

		select {
		case <-ctx.Done():
			logger.Info("Shutdown requested, stopping daemon")
			return nil

		case <-timerC:
			timer = nil
			logger.Info("Running scheduled update of remote instances")
			if err := d.runOnce(ctx, cfg, "schedule"); err != nil {
				logger.Error("Scheduled run failed", log.Error(err))
			}

		case path := <-eventsCh:
			logger.Info("Configuration file changed, reloading", slog.String("path", path))
			cfg, spec, w = d.reloadAndRun(ctx, cfg, spec, w, logger, "filewatch")

		case <-reloadCh:
			logger.Info("Reload signal received, reloading configuration")
			cfg, spec, w = d.reloadAndRun(ctx, cfg, spec, w, logger, "signal")
		}
	}
}

// load reads the configuration, applies command line overrides and
// derives the effective schedule.
func (d *Daemon) load() (*config.Config, config.ScheduleSpec, error) {
	loadConfig := d.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}
	cfg, err := loadConfig(d.ConfigPath)
	if err != nil {
		return nil, config.ScheduleSpec{}, err
	}

	if d.Overrides.WatchConfig != nil {
		cfg.Buildarr.WatchConfig = *d.Overrides.WatchConfig
	}
	if len(d.Overrides.UpdateDays) > 0 {
		cfg.Buildarr.UpdateDays = d.Overrides.UpdateDays
	}
	if len(d.Overrides.UpdateTimes) > 0 {
		cfg.Buildarr.UpdateTimes = d.Overrides.UpdateTimes
	}

	return cfg, cfg.ScheduleSpec(), nil
}

// runOnce executes one pipeline run. Only fatal configuration errors are
// returned; per-instance failures are reported in the run summary.
func (d *Daemon) runOnce(ctx context.Context, cfg *config.Config, trigger string) error {
	daemonRuns.WithLabelValues(trigger).Inc()
	result, err := d.RunPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	if result.Outcome() != pipeline.OutcomeSuccess {
		d.logger().Warn("Run finished with failures", slog.String("trigger", trigger))
	}
	return nil
}

// reloadAndRun reloads the configuration and performs a run with it.
// A reload failure keeps the previous configuration, schedule and watcher,
// so the daemon never stops observing for changes. A fatal error in the
// follow-up run is logged and the daemon continues.
func (d *Daemon) reloadAndRun(ctx context.Context, cfg *config.Config, spec config.ScheduleSpec, w *watcher, logger *slog.Logger, trigger string) (*config.Config, config.ScheduleSpec, *watcher) {
	newCfg, newSpec, err := d.load()
	if err != nil {
		logger.Error("Failed to reload configuration, keeping previous configuration", log.Error(err))
		return cfg, spec, w
	}

	if w != nil {
		w.Close()
		w = nil
	}
	newW, err := d.startWatcher(newCfg, newSpec, logger)
	if err != nil {
		logger.Error("Failed to restart configuration watcher", log.Error(err))
	} else {
		w = newW
	}
	d.logSchedule(logger, newSpec)

	if err := d.runOnce(ctx, newCfg, trigger); err != nil {
		logger.Error("Run failed after configuration reload", log.Error(err))
	}
	return newCfg, newSpec, w
}

func (d *Daemon) startWatcher(cfg *config.Config, spec config.ScheduleSpec, logger *slog.Logger) (*watcher, error) {
	if !spec.WatchConfig {
		return nil, nil
	}
	debounce := d.debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w, err := newWatcher(cfg.Files(), debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("starting configuration watcher: %w", err)
	}
	logger.Info("Watching configuration files for changes",
		slog.Int("files", len(cfg.Files())))
	return w, nil
}

// armTimer computes the next scheduled run time and arms a timer for it.
// Returns nil when no schedule times are configured.
func (d *Daemon) armTimer(old *time.Timer, spec config.ScheduleSpec, logger *slog.Logger) *time.Timer {
	if old != nil {
		old.Stop()
	}
	now := d.clock()
	next := spec.NextRun(now)
	if next.IsZero() {
		nextRunTimestamp.Set(0)
		logger.Warn("No scheduled run times configured")
		return nil
	}
	nextRunTimestamp.Set(float64(next.Unix()))
	logger.Info("The next scheduled run is at " + next.Format("2006-01-02 15:04"))
	return time.NewTimer(next.Sub(now))
}

func (d *Daemon) logSchedule(logger *slog.Logger, spec config.ScheduleSpec) {
	logger.Info("Daemon configuration",
		slog.Bool("watch_config", spec.WatchConfig),
		slog.Int("schedule_times", len(spec.Times)))
	for _, st := range spec.Times {
		logger.Debug("Scheduled update time: " + st.String())
	}
}

func (d *Daemon) logger() *slog.Logger {
	if d.Logger != nil {
		return log.WithComponent(d.Logger, "daemon")
	}
	return log.WithComponent(slog.Default(), "daemon")
}

func (d *Daemon) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}
