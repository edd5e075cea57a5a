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

package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildarr/buildarr/internal/plugin"
	"github.com/buildarr/buildarr/internal/registry"
)

func ref(pluginName, instance string) plugin.InstanceRef {
	return plugin.InstanceRef{Plugin: pluginName, Instance: instance}
}

func buildRegistry(t *testing.T, links map[plugin.InstanceRef][]plugin.InstanceRef) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for instRef, instLinks := range links {
		require.NoError(t, reg.Add(&registry.Instance{Ref: instRef, Links: instLinks}))
	}
	return reg
}

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	// sonarr-hd is the import list source for sonarr-4k, so it must be
	// processed first despite sorting after it lexicographically.
	reg := buildRegistry(t, map[plugin.InstanceRef][]plugin.InstanceRef{
		ref("sonarr", "sonarr-hd"): nil,
		ref("sonarr", "sonarr-4k"): {ref("sonarr", "sonarr-hd")},
	})

	order, err := Resolve(reg)
	require.NoError(t, err)
	assert.Equal(t, []plugin.InstanceRef{
		ref("sonarr", "sonarr-hd"),
		ref("sonarr", "sonarr-4k"),
	}, order)
}

func TestResolveIndependentInstancesAreSorted(t *testing.T) {
	reg := buildRegistry(t, map[plugin.InstanceRef][]plugin.InstanceRef{
		ref("sonarr", "b"): nil,
		ref("radarr", "a"): nil,
		ref("sonarr", "a"): nil,
	})

	order, err := Resolve(reg)
	require.NoError(t, err)
	assert.Equal(t, []plugin.InstanceRef{
		ref("radarr", "a"),
		ref("sonarr", "a"),
		ref("sonarr", "b"),
	}, order)
}

func TestResolveDeterministic(t *testing.T) {
	links := map[plugin.InstanceRef][]plugin.InstanceRef{
		ref("sonarr", "a"): nil,
		ref("sonarr", "b"): {ref("sonarr", "a")},
		ref("sonarr", "c"): {ref("sonarr", "a"), ref("sonarr", "b")},
		ref("radarr", "x"): nil,
	}

	first, err := Resolve(buildRegistry(t, links))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Resolve(buildRegistry(t, links))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveCycleNamesBothInstances(t *testing.T) {
	reg := buildRegistry(t, map[plugin.InstanceRef][]plugin.InstanceRef{
		ref("sonarr", "a"): {ref("sonarr", "b")},
		ref("sonarr", "b"): {ref("sonarr", "a")},
	})

	_, err := Resolve(reg)
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, err.Error(), `sonarr.instances["a"]`)
	assert.Contains(t, err.Error(), `sonarr.instances["b"]`)
	// The chain ends where it started.
	assert.Equal(t, cycleErr.Chain[0], cycleErr.Chain[len(cycleErr.Chain)-1])
}

func TestResolveSelfLinkIsACycle(t *testing.T) {
	reg := buildRegistry(t, map[plugin.InstanceRef][]plugin.InstanceRef{
		ref("sonarr", "a"): {ref("sonarr", "a")},
	})

	_, err := Resolve(reg)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestResolveUnresolvedLink(t *testing.T) {
	reg := buildRegistry(t, map[plugin.InstanceRef][]plugin.InstanceRef{
		ref("sonarr", "a"): {ref("sonarr", "missing")},
	})

	_, err := Resolve(reg)
	require.Error(t, err)

	var linkErr *UnresolvedLinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, ref("sonarr", "a"), linkErr.Source)
	assert.Equal(t, ref("sonarr", "missing"), linkErr.Target)
}

func TestReverse(t *testing.T) {
	order := []plugin.InstanceRef{ref("a", "1"), ref("b", "2"), ref("c", "3")}
	assert.Equal(t, []plugin.InstanceRef{ref("c", "3"), ref("b", "2"), ref("a", "1")}, Reverse(order))
	assert.Empty(t, Reverse(nil))
}
