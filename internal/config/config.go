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

// Package config loads the Buildarr configuration: a YAML file plus any
// files it includes, deep-merged into one tree. The engine treats the
// resulting tree as read-only input for the duration of a run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// BuildarrConfig is the `buildarr` section controlling engine behaviour.
type BuildarrConfig struct {
	// WatchConfig reloads configuration files and triggers a run when they
	// change while the daemon is running.
	WatchConfig bool `yaml:"watch_config"`

	// UpdateDays are the days scheduled runs happen on.
	// Default: every day.
	UpdateDays []Weekday `yaml:"update_days"`

	// UpdateTimes are the times of day scheduled runs happen at.
	// Default: 03:00.
	UpdateTimes []TimeOfDay `yaml:"update_times"`
}

// DefaultBuildarrConfig returns the engine defaults: no config watching,
// a run every day at 03:00.
func DefaultBuildarrConfig() BuildarrConfig {
	return BuildarrConfig{
		WatchConfig: false,
		UpdateDays: []Weekday{
			Weekday(time.Sunday), Weekday(time.Monday), Weekday(time.Tuesday),
			Weekday(time.Wednesday), Weekday(time.Thursday), Weekday(time.Friday),
			Weekday(time.Saturday),
		},
		UpdateTimes: []TimeOfDay{{Hour: 3}},
	}
}

// Config is the merged, validated configuration tree for one run.
type Config struct {
	// Buildarr is the engine's own configuration section.
	Buildarr BuildarrConfig

	// Plugins holds the raw YAML section for each configured plugin,
	// keyed by plugin name. Plugins decode and validate their own section.
	Plugins map[string]*yaml.Node

	files []string
}

// Files returns the absolute paths of every file that contributed to this
// configuration (the main file and all includes), in load order. The
// daemon watches these files for changes.
func (c *Config) Files() []string {
	return append([]string{}, c.files...)
}

// ScheduleSpec derives the scheduled run times from the configuration:
// the cross product of update days and update times, sorted and deduplicated.
func (c *Config) ScheduleSpec() ScheduleSpec {
	times := make([]ScheduleTime, 0, len(c.Buildarr.UpdateDays)*len(c.Buildarr.UpdateTimes))
	for _, day := range c.Buildarr.UpdateDays {
		for _, t := range c.Buildarr.UpdateTimes {
			times = append(times, ScheduleTime{Day: day, Time: t})
		}
	}
	return ScheduleSpec{
		Times:       sortScheduleTimes(times),
		WatchConfig: c.Buildarr.WatchConfig,
	}
}

// Load reads the configuration file at path, resolves and deep-merges its
// includes, and decodes the engine section. Plugin sections are retained
// as raw YAML for the plugins themselves to decode.
//
// Includes are processed depth-first: included files are merged first, in
// declaration order, and the including file's own values win over them.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration path: %w", err)
	}

	var files []string
	tree, err := loadTree(absPath, &files, map[string]bool{})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Buildarr: DefaultBuildarrConfig(),
		Plugins:  make(map[string]*yaml.Node),
		files:    files,
	}

	for key, value := range tree {
		node, err := toNode(value)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", key, err)
		}
		if key == "buildarr" {
			if err := node.Decode(&cfg.Buildarr); err != nil {
				return nil, fmt.Errorf("invalid buildarr section: %w", err)
			}
			continue
		}
		cfg.Plugins[key] = node
	}

	return cfg, nil
}

// loadTree reads one file, merges its includes beneath it, and appends
// every visited file to files. Include cycles are rejected.
func loadTree(path string, files *[]string, visited map[string]bool) (map[string]any, error) {
	if visited[path] {
		return nil, fmt.Errorf("configuration file %q included more than once", path)
	}
	visited[path] = true
	*files = append(*files, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	if tree == nil {
		tree = map[string]any{}
	}

	includes, err := popIncludes(tree, path)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	for _, include := range includes {
		includePath := include
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(filepath.Dir(path), includePath)
		}
		includeTree, err := loadTree(includePath, files, visited)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(&merged, includeTree, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging %q: %w", includePath, err)
		}
	}
	if err := mergo.Merge(&merged, tree, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging %q: %w", path, err)
	}
	return merged, nil
}

func popIncludes(tree map[string]any, path string) ([]string, error) {
	raw, ok := tree["includes"]
	if !ok {
		return nil, nil
	}
	delete(tree, "includes")

	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%q: includes must be a list of file paths", path)
	}
	includes := make([]string, 0, len(list))
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%q: includes must be a list of file paths", path)
		}
		includes = append(includes, s)
	}
	return includes, nil
}

// toNode converts a merged tree value back into a yaml.Node so plugin
// decoders can apply their own strict typing to it.
func toNode(value any) (*yaml.Node, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}, nil
	}
	return doc.Content[0], nil
}
