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

// Stage is one phase of the fixed reconciliation pipeline. Exactly one
// stage is active at a time for a run; a stage runs to completion across
// all instances before the next stage starts.
type Stage int

const (
	// StageRenderPreInit evaluates dynamic configuration values that do
	// not require instance connectivity. Runs once per plugin.
	StageRenderPreInit Stage = iota
	// StageInitializeInstances performs one-time bootstrap an instance may
	// require before its API is usable.
	StageInitializeInstances
	// StageRenderPostInit re-evaluates dynamic values that require a live
	// instance connection.
	StageRenderPostInit
	// StageFetchSecrets obtains credentials and verifies connectivity.
	StageFetchSecrets
	// StageFetchRemote retrieves current remote state for every managed
	// resource type.
	StageFetchRemote
	// StageComputeDiff runs all reconciliation map entries per instance.
	// No I/O happens in this stage.
	StageComputeDiff
	// StageApplyUpdates pushes instances with a non-empty diff, one
	// batched request per resource.
	StageApplyUpdates
	// StageDeleteUnmanaged removes remote resources absent from the local
	// declaration, for resources marked deletable. Instances are processed
	// in reverse dependency order.
	StageDeleteUnmanaged
)

var stageNames = map[Stage]string{
	StageRenderPreInit:       "render-pre-init",
	StageInitializeInstances: "initialize-instances",
	StageRenderPostInit:      "render-post-init",
	StageFetchSecrets:        "fetch-secrets",
	StageFetchRemote:         "fetch-remote",
	StageComputeDiff:         "compute-diff",
	StageApplyUpdates:        "apply-updates",
	StageDeleteUnmanaged:     "delete-unmanaged",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}
