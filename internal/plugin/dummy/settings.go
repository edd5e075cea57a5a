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
	"fmt"

	"github.com/buildarr/buildarr/internal/plugin"
	"github.com/buildarr/buildarr/internal/remotemap"
)

// settingsResource manages the instance's settings document. It is a
// singleton resource: one GET to fetch, at most one PUT to update.
type settingsResource struct {
	config *instanceConfig
}

// Name implements plugin.ResourceType.
func (r *settingsResource) Name() string {
	return "settings"
}

// Entries implements plugin.ResourceType.
func (r *settingsResource) Entries() []remotemap.Entry {
	return []remotemap.Entry{
		{
			Path: "settings.instance_name",
			Local: func(any) (remotemap.Value, bool) {
				name := r.config.spec.Settings.InstanceName
				if name == nil {
					return nil, false
				}
				return *name, true
			},
			Remote: func(remote any) remotemap.Value {
				return remoteAttr(remote, "instanceName")
			},
			Render: remotemap.RenderKey("instanceName"),
		},
		{
			Path: "settings.trash_value",
			Local: func(any) (remotemap.Value, bool) {
				value := r.config.spec.Settings.TrashValue
				if value == nil {
					return nil, false
				}
				return *value, true
			},
			Remote: func(remote any) remotemap.Value {
				return remoteAttr(remote, "trashValue")
			},
			Render: remotemap.RenderKey("trashValue"),
		},
		{
			Path: "settings.source",
			Local: func(any) (remotemap.Value, bool) {
				if r.config.spec.Settings.Source == nil {
					return nil, false
				}
				// Rendered from the source instance's status during
				// post-init rendering.
				return r.config.sourceID, true
			},
			Remote: func(remote any) remotemap.Value {
				return remoteAttr(remote, "sourceInstanceId")
			},
			Render: remotemap.RenderKey("sourceInstanceId"),
		},
	}
}

// FetchRemote implements plugin.ResourceType.
func (r *settingsResource) FetchRemote(ctx context.Context, s plugin.Secrets) (any, error) {
	var remote map[string]any
	if err := apiClient(s).Get(ctx, "/api/v1/settings", &remote); err != nil {
		return nil, err
	}
	return remote, nil
}

// BasePayload implements plugin.ResourceType. The fetched document is the
// base, so attributes this plugin does not manage round-trip unchanged.
func (r *settingsResource) BasePayload(remote any) map[string]any {
	doc, ok := remote.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	base := make(map[string]any, len(doc))
	for k, v := range doc {
		base[k] = v
	}
	return base
}

// Apply implements plugin.ResourceType with a single PUT of the full
// settings document.
func (r *settingsResource) Apply(ctx context.Context, s plugin.Secrets, payload map[string]any) error {
	return apiClient(s).Put(ctx, "/api/v1/settings", payload, nil)
}

func remoteAttr(remote any, key string) remotemap.Value {
	doc, ok := remote.(map[string]any)
	if !ok {
		return nil
	}
	return doc[key]
}

func apiClient(s plugin.Secrets) *httpClient {
	return &httpClient{secrets: s.(*secrets)}
}

// httpClient narrows the secrets object to the API surface the resource
// uses, keeping the type assertion in one place.
type httpClient struct {
	secrets *secrets
}

func (c *httpClient) Get(ctx context.Context, path string, out any) error {
	if err := c.secrets.client.Get(ctx, path, out); err != nil {
		return fmt.Errorf("dummy API: %w", err)
	}
	return nil
}

func (c *httpClient) Put(ctx context.Context, path string, body, out any) error {
	if err := c.secrets.client.Put(ctx, path, body, out); err != nil {
		return fmt.Errorf("dummy API: %w", err)
	}
	return nil
}
