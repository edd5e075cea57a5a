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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildarr/buildarr/internal/config"
	"github.com/buildarr/buildarr/internal/daemon"
)

// newDaemonCommand creates the daemon command: run continuously, updating
// instances on a schedule and on configuration changes.
func newDaemonCommand(opts *options) *cobra.Command {
	var (
		watch       bool
		noWatch     bool
		updateDays  []string
		updateTimes []string
	)

	cmd := &cobra.Command{
		Use:   "daemon [config-path]",
		Short: "Run as a daemon, updating instances on a schedule",
		Long: `Daemon applies the configuration immediately, then keeps running:
instances are updated at the configured times of day, when the
configuration files change (if watching is enabled), and when the
process receives SIGHUP.

Command line flags override the corresponding buildarr.* configuration
file values on every load and reload.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch && noWatch {
				return fmt.Errorf("--watch and --no-watch are mutually exclusive")
			}

			overrides, err := parseOverrides(watch, noWatch, updateDays, updateTimes)
			if err != nil {
				return err
			}

			runner, err := newRunner(opts)
			if err != nil {
				return err
			}

			d := daemon.New(opts.configFile(args), runner, overrides, opts.logger)
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch configuration files and update instances when they change")
	cmd.Flags().BoolVarP(&noWatch, "no-watch", "W", false, "Do not watch configuration files")
	cmd.Flags().StringArrayVarP(&updateDays, "update-day", "d", nil, "Update instances on this day of the week (repeatable, e.g. monday)")
	cmd.Flags().StringArrayVarP(&updateTimes, "update-time", "t", nil, "Update instances at this time of day (repeatable, 24-hour HH:MM)")

	return cmd
}

func parseOverrides(watch, noWatch bool, updateDays, updateTimes []string) (daemon.Overrides, error) {
	var overrides daemon.Overrides

	switch {
	case watch:
		enabled := true
		overrides.WatchConfig = &enabled
	case noWatch:
		disabled := false
		overrides.WatchConfig = &disabled
	}

	for _, raw := range updateDays {
		day, err := config.ParseWeekday(raw)
		if err != nil {
			return daemon.Overrides{}, err
		}
		overrides.UpdateDays = append(overrides.UpdateDays, day)
	}
	for _, raw := range updateTimes {
		timeOfDay, err := config.ParseTimeOfDay(raw)
		if err != nil {
			return daemon.Overrides{}, err
		}
		overrides.UpdateTimes = append(overrides.UpdateTimes, timeOfDay)
	}
	return overrides, nil
}
