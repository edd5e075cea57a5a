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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal tracks completed pipeline runs by outcome
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildarr_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// instanceFailures tracks per-instance failures by plugin and stage
	instanceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildarr_instance_failures_total",
			Help: "Total per-instance failures by plugin and stage",
		},
		[]string{"plugin", "stage"},
	)

	// attributeChanges tracks attribute changes applied by plugin
	attributeChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildarr_attribute_changes_total",
			Help: "Total attribute changes applied by plugin",
		},
		[]string{"plugin"},
	)

	// runDuration tracks run wall time
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buildarr_run_duration_seconds",
			Help:    "Wall time of completed pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// recordRun records metrics for a completed run.
func recordRun(result *Result) {
	runsTotal.WithLabelValues(string(result.Outcome())).Inc()
	runDuration.Observe(result.Finished.Sub(result.Started).Seconds())
	for ref, n := range result.Applied {
		attributeChanges.WithLabelValues(ref.Plugin).Add(float64(n))
	}
	for ref, err := range result.Failed {
		instanceFailures.WithLabelValues(ref.Plugin, err.Stage.String()).Inc()
	}
}
