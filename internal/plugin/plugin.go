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

// Package plugin defines the contract between the reconciliation engine and
// application plugins. The set of installed plugins is fixed at process
// startup; the engine depends only on these interfaces, never on a concrete
// plugin type.
package plugin

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/buildarr/buildarr/internal/remotemap"
)

// DefaultInstance is the reserved instance name used when the user
// configures a single unnamed instance for a plugin. User-defined instance
// names must never equal this sentinel.
const DefaultInstance = "default"

// InstanceRef identifies one named instance of a managed application.
type InstanceRef struct {
	Plugin   string
	Instance string
}

// String renders the reference in configuration-tree form,
// e.g. `sonarr.instances["sonarr-4k"]`.
func (r InstanceRef) String() string {
	return fmt.Sprintf("%s.instances[%q]", r.Plugin, r.Instance)
}

// Less orders references lexicographically by (plugin, instance), the
// deterministic tie-break used throughout the engine.
func (r InstanceRef) Less(other InstanceRef) bool {
	if r.Plugin != other.Plugin {
		return r.Plugin < other.Plugin
	}
	return r.Instance < other.Instance
}

// ValidateInstanceName rejects user-defined instance names that collide
// with the reserved sentinel.
func ValidateInstanceName(name string) error {
	if name == DefaultInstance {
		return fmt.Errorf("instance name %q is reserved", DefaultInstance)
	}
	if name == "" {
		return fmt.Errorf("instance name must not be empty")
	}
	return nil
}

// Plugin is one installed application plugin.
type Plugin interface {
	// Name returns the plugin name used as the configuration section key.
	Name() string

	// DecodeConfig parses and validates the plugin's section of the merged
	// configuration tree. A validation failure here is a fatal
	// configuration error.
	DecodeConfig(node *yaml.Node) (Config, error)
}

// Config is one plugin's validated configuration, covering all of its
// declared instances.
type Config interface {
	// InstanceNames returns the user-declared instance names, or
	// [DefaultInstance] when a single unnamed instance is configured.
	InstanceNames() []string

	// Instance returns the fully resolved configuration for one instance,
	// with plugin-global and instance-local values merged.
	Instance(name string) (InstanceConfig, error)
}

// InstanceConfig is the merged local configuration of one instance.
type InstanceConfig interface {
	// ConnectionInfo returns the connection parameters for the instance.
	ConnectionInfo() (scheme, host string, port int)

	// Links returns the instance references this instance's configuration
	// depends on. Every target must exist in the run's instance registry.
	Links() []InstanceRef

	// FetchSecrets obtains or validates credentials for the instance.
	// Implementations should fetch anything not declared locally
	// (e.g. an API key published by the instance itself).
	FetchSecrets(ctx context.Context) (Secrets, error)

	// ResourceTypes returns the managed resource types for this instance.
	ResourceTypes() []ResourceType
}

// Secrets holds resolved credentials for one instance. The engine treats it
// as opaque and caches it in memory for the duration of a single run only.
type Secrets interface {
	// Test performs a connectivity check against the instance. This is the
	// first point at which a bad credential or unreachable host is detected.
	Test(ctx context.Context) error
}

// ResourceType is one managed resource type exposed by an instance.
type ResourceType interface {
	// Name returns the resource type name, used in logging.
	Name() string

	// Entries returns the attribute reconciliation map for this resource.
	Entries() []remotemap.Entry

	// FetchRemote retrieves the current remote state for this resource.
	FetchRemote(ctx context.Context, secrets Secrets) (any, error)

	// BasePayload converts fetched remote state into the base update
	// payload, so unmanaged attributes round-trip unchanged.
	BasePayload(remote any) map[string]any

	// Apply pushes a rendered payload of changed attributes to the remote
	// instance in exactly one create/update call.
	Apply(ctx context.Context, secrets Secrets, payload map[string]any) error
}

// Deleter is implemented by resource types that support removing remote
// resources absent from the local declaration. Only resources explicitly
// marked deletable in configuration should implement this.
type Deleter interface {
	// DeleteUnmanaged removes remote resources not declared locally and
	// returns the number of resources deleted.
	DeleteUnmanaged(ctx context.Context, secrets Secrets, remote any) (int, error)
}

// PreInitRenderer is an optional plugin hook evaluated once per plugin
// before any instance connectivity, for dynamic values that do not require
// a live instance (e.g. externally fetched shared metadata).
type PreInitRenderer interface {
	RenderPreInit(ctx context.Context) error
}

// Initializer is an optional instance hook for one-time bootstrap an
// instance may require before its API is usable (e.g. first-run admin
// account creation).
type Initializer interface {
	Initialize(ctx context.Context) error
}

// PostInitRenderer is an optional instance hook re-evaluating dynamic
// values that require a live, initialized instance (e.g. resolving a
// human-readable name to an internal identifier).
type PostInitRenderer interface {
	RenderPostInit(ctx context.Context) error
}
