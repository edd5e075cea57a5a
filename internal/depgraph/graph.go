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

// Package depgraph resolves the execution order of instances from the
// instance links declared in their configurations.
//
// The graph is rebuilt from the instance registry at the start of every run
// and discarded at run end. A cycle or an unresolved link target is a fatal
// configuration error, detected before any network I/O begins.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/buildarr/buildarr/internal/plugin"
	"github.com/buildarr/buildarr/internal/registry"
)

// CycleError reports a dependency cycle between instance references.
// The chain lists the references along the cycle in traversal order,
// ending with the reference that closed the cycle.
type CycleError struct {
	Chain []plugin.InstanceRef
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("dependency cycle detected in instance references:\n")
	for i, ref := range e.Chain {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, ref)
	}
	return strings.TrimRight(b.String(), "\n")
}

// UnresolvedLinkError reports an instance link whose target does not exist
// in the registry for the currently active plugin set.
type UnresolvedLinkError struct {
	Source plugin.InstanceRef
	Target plugin.InstanceRef
}

func (e *UnresolvedLinkError) Error() string {
	return fmt.Sprintf("unable to resolve instance dependency %s -> %s: target instance not defined", e.Source, e.Target)
}

// Resolve validates every instance link and produces a deterministic total
// order over all registered instances such that a link target always
// precedes its source. Independent instances are ordered lexicographically
// by (plugin, instance), so repeated runs over unchanged configuration
// produce identical ordering.
func Resolve(reg *registry.Registry) ([]plugin.InstanceRef, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[plugin.InstanceRef]int, reg.Len())
	order := make([]plugin.InstanceRef, 0, reg.Len())

	var visit func(ref plugin.InstanceRef, chain []plugin.InstanceRef) error
	visit = func(ref plugin.InstanceRef, chain []plugin.InstanceRef) error {
		switch state[ref] {
		case done:
			return nil
		case visiting:
			// Back-edge: trim the chain to the cycle itself.
			start := 0
			for i, c := range chain {
				if c == ref {
					start = i
					break
				}
			}
			return &CycleError{Chain: append(append([]plugin.InstanceRef{}, chain[start:]...), ref)}
		}

		inst, ok := reg.Get(ref)
		if !ok {
			source := ref
			if len(chain) > 0 {
				source = chain[len(chain)-1]
			}
			return &UnresolvedLinkError{Source: source, Target: ref}
		}

		state[ref] = visiting
		targets := append([]plugin.InstanceRef{}, inst.Links...)
		sort.Slice(targets, func(i, j int) bool { return targets[i].Less(targets[j]) })
		for _, target := range targets {
			if err := visit(target, append(chain, ref)); err != nil {
				return err
			}
		}
		state[ref] = done
		order = append(order, ref)
		return nil
	}

	for _, ref := range reg.Refs() {
		if err := visit(ref, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Reverse returns the order reversed, for the deletion stage: an instance
// must be processed before the instances it depends on, so that resources
// still referenced by dependents are never deleted first.
func Reverse(order []plugin.InstanceRef) []plugin.InstanceRef {
	reversed := make([]plugin.InstanceRef, len(order))
	for i, ref := range order {
		reversed[len(order)-1-i] = ref
	}
	return reversed
}
