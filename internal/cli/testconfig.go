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
	"github.com/spf13/cobra"

	"github.com/buildarr/buildarr/internal/config"
)

// newTestConfigCommand creates the test-config command: validate the
// configuration without contacting any remote instance.
func newTestConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test-config [config-path]",
		Short: "Validate the configuration without contacting instances",
		Long: `Test-config loads and validates the configuration: YAML decoding,
include resolution, plugin configuration validation, instance name
checks and dependency graph resolution. No remote instance is
contacted and no state is modified.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile(args))
			if err != nil {
				return err
			}

			runner, err := newRunner(opts)
			if err != nil {
				return err
			}
			return runner.Validate(cmd.Context(), cfg)
		},
	}
}
