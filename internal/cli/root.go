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

// Package cli implements the buildarr command line interface.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/buildarr/buildarr/internal/log"
	"github.com/buildarr/buildarr/internal/pipeline"
	"github.com/buildarr/buildarr/internal/plugin"
	"github.com/buildarr/buildarr/internal/plugin/dummy"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version information for the version
// command.
func SetVersion(v, c, d string) {
	version, commit, buildDate = v, c, d
}

// options holds persistent flag values shared by all subcommands.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	logger *slog.Logger
}

// configFile resolves the configuration path: an optional positional
// argument takes precedence over the --config flag.
func (o *options) configFile(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return o.configPath
}

// NewRootCommand creates the buildarr root command with all subcommands
// attached.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "buildarr",
		Short: "Declarative configuration management for media service stacks",
		Long: `Buildarr reads a declarative YAML configuration describing how your
application instances should be configured, compares it with the live
state of each instance, and pushes the minimal set of API updates
required to make the instances match the declaration.

Attributes not declared in the configuration are never modified.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(opts)
			slog.SetDefault(opts.logger)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "buildarr.yml", "Path to the Buildarr configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newDaemonCommand(opts))
	cmd.AddCommand(newTestConfigCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// newLogger builds the process logger from the environment, with command
// line flags taking precedence.
func newLogger(opts *options) *slog.Logger {
	cfg := log.FromEnv()
	if opts.logLevel != "" {
		cfg.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Format = log.Format(opts.logFormat)
	}
	return log.New(cfg)
}

// newRunner assembles the pipeline runner with every installed plugin.
func newRunner(opts *options) (*pipeline.Runner, error) {
	plugins, err := plugin.NewSet(
		dummy.New(),
	)
	if err != nil {
		return nil, err
	}
	return &pipeline.Runner{
		Plugins: plugins,
		Logger:  opts.logger,
	}, nil
}
