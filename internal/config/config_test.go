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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "buildarr.yml", `
dummy:
  hostname: localhost
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Buildarr.WatchConfig)
	assert.Len(t, cfg.Buildarr.UpdateDays, 7)
	assert.Equal(t, []TimeOfDay{{Hour: 3}}, cfg.Buildarr.UpdateTimes)
	assert.Contains(t, cfg.Plugins, "dummy")
	assert.Equal(t, []string{path}, cfg.Files())
}

func TestLoadBuildarrSection(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "buildarr.yml", `
buildarr:
  watch_config: true
  update_days:
    - monday
    - thursday
  update_times:
    - "06:30"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Buildarr.WatchConfig)
	assert.Equal(t, []Weekday{Weekday(time.Monday), Weekday(time.Thursday)}, cfg.Buildarr.UpdateDays)
	assert.Equal(t, []TimeOfDay{{Hour: 6, Minute: 30}}, cfg.Buildarr.UpdateTimes)
	assert.NotContains(t, cfg.Plugins, "buildarr")
}

func TestLoadIncludesMergeDepthFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yml", `
buildarr:
  watch_config: true
dummy:
  hostname: base-host
  port: 5000
`)
	path := writeFile(t, dir, "buildarr.yml", `
includes:
  - base.yml
dummy:
  hostname: override-host
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// The including file wins over its includes; untouched keys survive.
	assert.True(t, cfg.Buildarr.WatchConfig)

	var dummySection struct {
		Hostname string `yaml:"hostname"`
		Port     int    `yaml:"port"`
	}
	require.NoError(t, cfg.Plugins["dummy"].Decode(&dummySection))
	assert.Equal(t, "override-host", dummySection.Hostname)
	assert.Equal(t, 5000, dummySection.Port)

	files := cfg.Files()
	require.Len(t, files, 2)
	assert.Equal(t, path, files[0])
	assert.Equal(t, filepath.Join(dir, "base.yml"), files[1])
}

func TestLoadNestedIncludes(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "conf.d")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Relative includes resolve against the including file, not the cwd.
	writeFile(t, sub, "inner.yml", `
dummy:
  port: 5001
`)
	writeFile(t, dir, "middle.yml", `
includes:
  - conf.d/inner.yml
dummy:
  hostname: middle
`)
	path := writeFile(t, dir, "buildarr.yml", `
includes:
  - middle.yml
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Files(), 3)

	var dummySection struct {
		Hostname string `yaml:"hostname"`
		Port     int    `yaml:"port"`
	}
	require.NoError(t, cfg.Plugins["dummy"].Decode(&dummySection))
	assert.Equal(t, "middle", dummySection.Hostname)
	assert.Equal(t, 5001, dummySection.Port)
}

func TestLoadIncludeCycleRejected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", "includes: [b.yml]\n")
	writeFile(t, dir, "b.yml", "includes: [a.yml]\n")

	_, err := Load(filepath.Join(dir, "a.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "included more than once")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoadInvalidIncludesValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "buildarr.yml", "includes: not-a-list\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a list")
}

func TestScheduleSpecCrossProduct(t *testing.T) {
	cfg := &Config{
		Buildarr: BuildarrConfig{
			UpdateDays:  []Weekday{Weekday(time.Wednesday), Weekday(time.Monday)},
			UpdateTimes: []TimeOfDay{{Hour: 12}, {Hour: 3}},
			WatchConfig: true,
		},
	}

	spec := cfg.ScheduleSpec()
	assert.True(t, spec.WatchConfig)
	assert.Equal(t, []ScheduleTime{
		{Day: Weekday(time.Monday), Time: TimeOfDay{Hour: 3}},
		{Day: Weekday(time.Monday), Time: TimeOfDay{Hour: 12}},
		{Day: Weekday(time.Wednesday), Time: TimeOfDay{Hour: 3}},
		{Day: Weekday(time.Wednesday), Time: TimeOfDay{Hour: 12}},
	}, spec.Times)
}

func TestScheduleSpecDeduplicates(t *testing.T) {
	cfg := &Config{
		Buildarr: BuildarrConfig{
			UpdateDays:  []Weekday{Weekday(time.Monday), Weekday(time.Monday)},
			UpdateTimes: []TimeOfDay{{Hour: 3}},
		},
	}
	assert.Len(t, cfg.ScheduleSpec().Times, 1)
}
