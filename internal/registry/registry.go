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

// Package registry holds the per-run instance registry: the merged local
// configuration, connection parameters and resolved secrets for every
// instance of every active plugin. A Registry is built at the start of a
// run and discarded at run end; nothing in it survives across runs.
package registry

import (
	"fmt"
	"sort"

	"github.com/buildarr/buildarr/internal/plugin"
)

// Instance is one registered instance and its per-run state.
type Instance struct {
	Ref     plugin.InstanceRef
	Config  plugin.InstanceConfig
	Links   []plugin.InstanceRef
	Secrets plugin.Secrets
}

// Registry maps instance references to their per-run state.
type Registry struct {
	instances map[plugin.InstanceRef]*Instance
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{instances: make(map[plugin.InstanceRef]*Instance)}
}

// Add registers an instance. Duplicate references are rejected.
func (r *Registry) Add(inst *Instance) error {
	if _, ok := r.instances[inst.Ref]; ok {
		return fmt.Errorf("duplicate instance %s", inst.Ref)
	}
	r.instances[inst.Ref] = inst
	return nil
}

// Get returns the instance for the given reference.
func (r *Registry) Get(ref plugin.InstanceRef) (*Instance, bool) {
	inst, ok := r.instances[ref]
	return inst, ok
}

// Refs returns all registered instance references, sorted lexicographically
// by (plugin, instance) so iteration order is deterministic across runs.
func (r *Registry) Refs() []plugin.InstanceRef {
	refs := make([]plugin.InstanceRef, 0, len(r.instances))
	for ref := range r.instances {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.instances)
}

// Build populates a registry from the decoded per-plugin configurations.
// Instance names equal to the reserved sentinel are rejected unless they
// come from a single unnamed instance declaration (which plugins report as
// exactly one instance named with the sentinel).
func Build(configs map[string]plugin.Config) (*Registry, error) {
	reg := New()
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, pluginName := range names {
		cfg := configs[pluginName]
		instanceNames := cfg.InstanceNames()
		for _, instanceName := range instanceNames {
			if instanceName != plugin.DefaultInstance || len(instanceNames) != 1 {
				if err := plugin.ValidateInstanceName(instanceName); err != nil {
					return nil, fmt.Errorf("plugin %q: %w", pluginName, err)
				}
			}
			instCfg, err := cfg.Instance(instanceName)
			if err != nil {
				return nil, fmt.Errorf("plugin %q instance %q: %w", pluginName, instanceName, err)
			}
			inst := &Instance{
				Ref:    plugin.InstanceRef{Plugin: pluginName, Instance: instanceName},
				Config: instCfg,
				Links:  instCfg.Links(),
			}
			if err := reg.Add(inst); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}
