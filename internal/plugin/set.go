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

package plugin

import (
	"fmt"
	"sort"
)

// Set is the fixed registry of installed plugins, enumerated at process
// startup. There is no dynamic discovery.
type Set struct {
	plugins map[string]Plugin
}

// NewSet builds a plugin set. Duplicate plugin names are a programming
// error and rejected.
func NewSet(plugins ...Plugin) (*Set, error) {
	s := &Set{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		name := p.Name()
		if _, ok := s.plugins[name]; ok {
			return nil, fmt.Errorf("duplicate plugin name %q", name)
		}
		s.plugins[name] = p
	}
	return s, nil
}

// Get returns the plugin with the given name.
func (s *Set) Get(name string) (Plugin, bool) {
	p, ok := s.plugins[name]
	return p, ok
}

// Names returns the installed plugin names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.plugins))
	for name := range s.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of installed plugins.
func (s *Set) Len() int {
	return len(s.plugins)
}
