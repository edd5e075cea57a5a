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

// Package dummy is the reference plugin. It manages a deliberately small
// application (a single settings resource over a JSON API) while
// exercising every part of the plugin contract: instance links, API key
// autodiscovery, pre-init and post-init rendering, and the attribute
// reconciliation map.
package dummy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/buildarr/buildarr/internal/plugin"
)

// PluginName is the configuration section key for this plugin.
const PluginName = "dummy"

// Dummy is the installed plugin.
type Dummy struct{}

// New returns the dummy plugin.
func New() *Dummy {
	return &Dummy{}
}

// Name implements plugin.Plugin.
func (d *Dummy) Name() string {
	return PluginName
}

// DecodeConfig implements plugin.Plugin. Unknown attributes are rejected
// so configuration typos fail before any instance is contacted.
func (d *Dummy) DecodeConfig(node *yaml.Node) (plugin.Config, error) {
	cfg := &Config{}
	if err := decodeStrict(node, cfg); err != nil {
		return nil, fmt.Errorf("decoding dummy configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict decodes a YAML node into out, rejecting unknown fields.
// yaml.Node.Decode has no strict mode, so the node is round-tripped
// through a strict decoder.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}
