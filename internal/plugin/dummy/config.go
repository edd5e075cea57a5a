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

package dummy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/buildarr/buildarr/internal/httpapi"
	"github.com/buildarr/buildarr/internal/plugin"
)

const (
	defaultHostname = "dummy"
	defaultPort     = 5000
	defaultProtocol = "http"

	// trashReferenceQuality is the quality definition whose minimum data
	// rate fills trash_value when a trash_id is declared.
	trashReferenceQuality = "Bluray-1080p"
)

// Settings is the managed settings resource as declared locally. All
// attributes are optional; an undeclared attribute is never pushed to the
// remote instance.
type Settings struct {
	// InstanceName sets the display name of the instance.
	InstanceName *string `yaml:"instance_name"`

	// TrashID selects a TRaSH-Guides quality profile whose reference value
	// fills TrashValue during pre-init rendering.
	TrashID *string `yaml:"trash_id"`

	// TrashValue is the quality reference value. Declaring it explicitly
	// takes precedence over rendering it from TrashID.
	TrashValue *float64 `yaml:"trash_value"`

	// Source names another dummy instance to pull imports from. The name
	// is resolved to that instance's internal ID after initialization.
	Source *string `yaml:"source"`
}

// InstanceSpec is the connection and settings configuration for one
// instance. Plugin-global values act as defaults for every instance.
type InstanceSpec struct {
	Hostname string   `yaml:"hostname"`
	Port     int      `yaml:"port"`
	Protocol string   `yaml:"protocol"`
	APIKey   string   `yaml:"api_key"`
	Settings Settings `yaml:"settings"`
}

// Config is the decoded dummy plugin configuration section.
type Config struct {
	InstanceSpec `yaml:",inline"`

	// TrashMetadataDir is the local TRaSH-Guides metadata checkout used to
	// render trash_id declarations. Required only when a trash_id is used.
	TrashMetadataDir string `yaml:"trash_metadata_dir"`

	// Instances holds per-instance configuration. When empty, a single
	// unnamed instance is configured from the plugin-global values.
	Instances map[string]InstanceSpec `yaml:"instances"`

	built map[string]*instanceConfig
}

func (c *Config) validate() error {
	specs := c.Instances
	if len(specs) == 0 {
		specs = map[string]InstanceSpec{plugin.DefaultInstance: c.InstanceSpec}
	}
	for name, spec := range specs {
		if proto := spec.Protocol; proto != "" && proto != "http" && proto != "https" {
			return fmt.Errorf("instance %q: invalid protocol %q", name, proto)
		}
		if spec.Port < 0 || spec.Port > 65535 {
			return fmt.Errorf("instance %q: invalid port %d", name, spec.Port)
		}
	}
	return nil
}

// InstanceNames implements plugin.Config.
func (c *Config) InstanceNames() []string {
	if len(c.Instances) == 0 {
		return []string{plugin.DefaultInstance}
	}
	names := make([]string, 0, len(c.Instances))
	for name := range c.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instance implements plugin.Config. The resolved configuration merges
// instance-specific values over plugin-global defaults. Results are
// memoized so every stage of a run observes the same instance object.
func (c *Config) Instance(name string) (plugin.InstanceConfig, error) {
	if inst, ok := c.built[name]; ok {
		return inst, nil
	}

	spec := c.InstanceSpec
	if len(c.Instances) > 0 {
		instSpec, ok := c.Instances[name]
		if !ok {
			return nil, fmt.Errorf("undefined dummy instance %q", name)
		}
		if err := mergo.Merge(&instSpec, c.InstanceSpec); err != nil {
			return nil, fmt.Errorf("merging configuration for instance %q: %w", name, err)
		}
		spec = instSpec
		if spec.Hostname == "" {
			// An unset hostname defaults to the instance name itself.
			spec.Hostname = name
		}
	}
	if spec.Hostname == "" {
		spec.Hostname = defaultHostname
	}
	if spec.Port == 0 {
		spec.Port = defaultPort
	}
	if spec.Protocol == "" {
		spec.Protocol = defaultProtocol
	}

	inst := &instanceConfig{name: name, spec: spec, parent: c}
	if c.built == nil {
		c.built = make(map[string]*instanceConfig)
	}
	c.built[name] = inst
	return inst, nil
}

// RenderPreInit fills trash_value for every instance declaring a trash_id,
// from the local TRaSH-Guides metadata. No instance is contacted.
func (c *Config) RenderPreInit(_ context.Context) error {
	for _, name := range c.InstanceNames() {
		inst, err := c.Instance(name)
		if err != nil {
			return err
		}
		if err := inst.(*instanceConfig).renderTrashValue(c.TrashMetadataDir); err != nil {
			return fmt.Errorf("instance %q: %w", name, err)
		}
	}
	return nil
}

// instanceConfig is the fully resolved configuration of one instance.
type instanceConfig struct {
	name   string
	spec   InstanceSpec
	parent *Config

	// version is detected from the instance during initialization.
	version string

	// sourceID is the resolved internal ID of the linked source instance,
	// rendered after the source is initialized.
	sourceID string
}

// ConnectionInfo implements plugin.InstanceConfig.
func (c *instanceConfig) ConnectionInfo() (scheme, host string, port int) {
	return c.spec.Protocol, c.spec.Hostname, c.spec.Port
}

func (c *instanceConfig) hostURL() string {
	scheme, host, port := c.ConnectionInfo()
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// Links implements plugin.InstanceConfig. A declared settings source makes
// this instance depend on the named source instance.
func (c *instanceConfig) Links() []plugin.InstanceRef {
	if c.spec.Settings.Source == nil {
		return nil
	}
	return []plugin.InstanceRef{{Plugin: PluginName, Instance: *c.spec.Settings.Source}}
}

// FetchSecrets implements plugin.InstanceConfig. When no API key is
// declared it is fetched from the instance's initialization endpoint,
// which is only possible on instances with authentication disabled.
func (c *instanceConfig) FetchSecrets(ctx context.Context) (plugin.Secrets, error) {
	apiKey := c.spec.APIKey
	if apiKey == "" {
		var initialize initializeResponse
		client := httpapi.New(c.hostURL())
		if err := client.Get(ctx, "/initialize.json", &initialize); err != nil {
			return nil, fmt.Errorf("retrieving API key: %w", err)
		}
		if initialize.APIKey == "" {
			return nil, fmt.Errorf("instance did not publish an API key; declare api_key explicitly")
		}
		apiKey = initialize.APIKey
	}
	return newSecrets(c.hostURL(), apiKey), nil
}

// Initialize implements plugin.Initializer: wait for the instance API to
// come up and detect its version. The status endpoint is unauthenticated.
func (c *instanceConfig) Initialize(ctx context.Context) error {
	var status statusResponse
	client := httpapi.New(c.hostURL())
	if err := client.Get(ctx, "/api/v1/status", &status); err != nil {
		return fmt.Errorf("instance is not responding: %w", err)
	}
	c.version = status.Version
	return nil
}

// RenderPostInit implements plugin.PostInitRenderer: resolve the declared
// source instance name to that instance's internal ID. The source is
// already initialized here, because links order initialization.
func (c *instanceConfig) RenderPostInit(ctx context.Context) error {
	if c.spec.Settings.Source == nil {
		return nil
	}
	sourceName := *c.spec.Settings.Source
	source, err := c.parent.Instance(sourceName)
	if err != nil {
		return fmt.Errorf("resolving source instance %q: %w", sourceName, err)
	}

	var status statusResponse
	client := httpapi.New(source.(*instanceConfig).hostURL())
	if err := client.Get(ctx, "/api/v1/status", &status); err != nil {
		return fmt.Errorf("resolving source instance %q: %w", sourceName, err)
	}
	if status.InstanceID == "" {
		return fmt.Errorf("source instance %q did not report an instance ID", sourceName)
	}
	c.sourceID = status.InstanceID
	return nil
}

// ResourceTypes implements plugin.InstanceConfig.
func (c *instanceConfig) ResourceTypes() []plugin.ResourceType {
	return []plugin.ResourceType{&settingsResource{config: c}}
}

// renderTrashValue fills trash_value from the TRaSH-Guides metadata
// checkout when a trash_id is declared and no explicit value overrides it.
func (c *instanceConfig) renderTrashValue(metadataDir string) error {
	settings := &c.spec.Settings
	if settings.TrashID == nil || settings.TrashValue != nil {
		return nil
	}
	if metadataDir == "" {
		return fmt.Errorf("trash_id declared but trash_metadata_dir is not set")
	}
	trashID := strings.ToLower(*settings.TrashID)

	qualityDir := filepath.Join(metadataDir, "docs", "json", "sonarr", "quality-size")
	files, err := filepath.Glob(filepath.Join(qualityDir, "*.json"))
	if err != nil {
		return err
	}
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		var profile trashQualityProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			return fmt.Errorf("parsing %q: %w", file, err)
		}
		if strings.ToLower(profile.TrashID) != trashID {
			continue
		}
		for _, quality := range profile.Qualities {
			if quality.Quality == trashReferenceQuality {
				value := quality.Min
				settings.TrashValue = &value
				return nil
			}
		}
		return fmt.Errorf("quality definition %q not found in profile %q",
			trashReferenceQuality, *settings.TrashID)
	}
	return fmt.Errorf("no quality definition profile found with trash ID %q", *settings.TrashID)
}

type trashQualityProfile struct {
	TrashID   string `json:"trash_id"`
	Qualities []struct {
		Quality string  `json:"quality"`
		Min     float64 `json:"min"`
	} `json:"qualities"`
}

type initializeResponse struct {
	APIKey  string `json:"apiKey"`
	Version string `json:"version"`
}

type statusResponse struct {
	InstanceID string `json:"instanceId"`
	Version    string `json:"version"`
}
