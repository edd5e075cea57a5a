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

package pipeline

import (
	"fmt"

	"github.com/buildarr/buildarr/internal/plugin"
)

// ConfigError is a fatal, pre-flight configuration error: unresolved
// instance link, dependency cycle, schema validation failure or an
// unknown plugin. It aborts the entire run before any network I/O.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// InstanceError is a per-instance failure during a pipeline run. The
// affected instance is excluded from all later stages; other instances
// proceed normally.
type InstanceError struct {
	Ref   plugin.InstanceRef
	Stage Stage
	Err   error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("instance %s failed during %s: %v", e.Ref, e.Stage, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}
