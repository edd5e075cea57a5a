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
	"sort"
	"time"

	"github.com/buildarr/buildarr/internal/plugin"
)

// Outcome summarizes a completed run.
type Outcome string

const (
	// OutcomeSuccess means every instance completed all stages.
	OutcomeSuccess Outcome = "success"
	// OutcomePartialFailure means at least one instance failed but the
	// run itself completed.
	OutcomePartialFailure Outcome = "partial-failure"
)

// Result reports what a single pipeline run did. It is consumed only
// within one run; nothing in it is persisted.
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	// Applied counts attribute changes pushed per instance.
	Applied map[plugin.InstanceRef]int

	// Deleted counts unmanaged resources removed per instance.
	Deleted map[plugin.InstanceRef]int

	// Failed holds the first error per failed instance.
	Failed map[plugin.InstanceRef]*InstanceError

	// Skipped lists instances whose work was never started because a
	// shutdown was requested mid-run.
	Skipped []plugin.InstanceRef
}

func newResult(runID string) *Result {
	return &Result{
		RunID:   runID,
		Started: time.Now(),
		Applied: make(map[plugin.InstanceRef]int),
		Deleted: make(map[plugin.InstanceRef]int),
		Failed:  make(map[plugin.InstanceRef]*InstanceError),
	}
}

// Outcome reports whether the run fully succeeded.
func (r *Result) Outcome() Outcome {
	if len(r.Failed) > 0 {
		return OutcomePartialFailure
	}
	return OutcomeSuccess
}

// TotalApplied returns the total number of attribute changes pushed.
func (r *Result) TotalApplied() int {
	total := 0
	for _, n := range r.Applied {
		total += n
	}
	return total
}

// FailedRefs returns the failed instance references in deterministic order.
func (r *Result) FailedRefs() []plugin.InstanceRef {
	refs := make([]plugin.InstanceRef, 0, len(r.Failed))
	for ref := range r.Failed {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	return refs
}
