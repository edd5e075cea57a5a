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
	"github.com/buildarr/buildarr/internal/pipeline"
)

// newRunCommand creates the run command: a single reconciliation pass.
func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [config-path]",
		Short: "Update configured instances once and exit",
		Long: `Run performs a single reconciliation pass: load the configuration,
connect to every configured instance, and push whatever updates are
required to make the instances match the declaration.

The exit status is non-zero if any instance failed to update.`,
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

			result, err := runner.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if result.Outcome() != pipeline.OutcomeSuccess {
				return fmt.Errorf("run failed for %d of the configured instances", len(result.Failed))
			}
			return nil
		},
	}
}
