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

package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildarr/buildarr/internal/plugin"
)

type fakeConfig struct {
	instances map[string]*fakeInstanceConfig
}

func (c *fakeConfig) InstanceNames() []string {
	if len(c.instances) == 0 {
		return []string{plugin.DefaultInstance}
	}
	names := make([]string, 0, len(c.instances))
	for name := range c.instances {
		names = append(names, name)
	}
	return names
}

func (c *fakeConfig) Instance(name string) (plugin.InstanceConfig, error) {
	if len(c.instances) == 0 {
		return &fakeInstanceConfig{}, nil
	}
	inst, ok := c.instances[name]
	if !ok {
		return nil, fmt.Errorf("no such instance %q", name)
	}
	return inst, nil
}

type fakeInstanceConfig struct {
	links []plugin.InstanceRef
}

func (c *fakeInstanceConfig) ConnectionInfo() (string, string, int) { return "http", "localhost", 80 }
func (c *fakeInstanceConfig) Links() []plugin.InstanceRef           { return c.links }
func (c *fakeInstanceConfig) FetchSecrets(context.Context) (plugin.Secrets, error) {
	return nil, nil
}
func (c *fakeInstanceConfig) ResourceTypes() []plugin.ResourceType { return nil }

func TestBuildRegistersAllInstances(t *testing.T) {
	configs := map[string]plugin.Config{
		"sonarr": &fakeConfig{instances: map[string]*fakeInstanceConfig{
			"sonarr-hd": {},
			"sonarr-4k": {links: []plugin.InstanceRef{{Plugin: "sonarr", Instance: "sonarr-hd"}}},
		}},
		"radarr": &fakeConfig{},
	}

	reg, err := Build(configs)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	assert.Equal(t, []plugin.InstanceRef{
		{Plugin: "radarr", Instance: "default"},
		{Plugin: "sonarr", Instance: "sonarr-4k"},
		{Plugin: "sonarr", Instance: "sonarr-hd"},
	}, reg.Refs())

	inst, ok := reg.Get(plugin.InstanceRef{Plugin: "sonarr", Instance: "sonarr-4k"})
	require.True(t, ok)
	assert.Equal(t, []plugin.InstanceRef{{Plugin: "sonarr", Instance: "sonarr-hd"}}, inst.Links)
}

func TestBuildRejectsReservedInstanceName(t *testing.T) {
	// "default" is only allowed when it is the sole, unnamed instance.
	configs := map[string]plugin.Config{
		"sonarr": &fakeConfig{instances: map[string]*fakeInstanceConfig{
			"default": {},
			"other":   {},
		}},
	}

	_, err := Build(configs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestBuildSingleUnnamedInstanceAllowed(t *testing.T) {
	configs := map[string]plugin.Config{"dummy": &fakeConfig{}}

	reg, err := Build(configs)
	require.NoError(t, err)
	_, ok := reg.Get(plugin.InstanceRef{Plugin: "dummy", Instance: plugin.DefaultInstance})
	assert.True(t, ok)
}

func TestAddDuplicateRejected(t *testing.T) {
	reg := New()
	instRef := plugin.InstanceRef{Plugin: "dummy", Instance: "a"}
	require.NoError(t, reg.Add(&Instance{Ref: instRef}))
	require.Error(t, reg.Add(&Instance{Ref: instRef}))
}
