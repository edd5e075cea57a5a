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

package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// daemonRuns tracks pipeline runs started by the daemon, by trigger
	daemonRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildarr_daemon_runs_total",
			Help: "Total pipeline runs started by the daemon, by trigger type",
		},
		[]string{"trigger"},
	)

	// watcherEvents tracks raw configuration file events by operation
	watcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildarr_watcher_events_total",
			Help: "Total configuration file events received, by operation",
		},
		[]string{"op"},
	)

	// triggersCoalesced tracks triggers collapsed into an already pending run
	triggersCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildarr_triggers_coalesced_total",
			Help: "Total triggers coalesced into an already pending run",
		},
	)

	// nextRunTimestamp exposes the next scheduled run time
	nextRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buildarr_next_run_timestamp_seconds",
			Help: "Unix timestamp of the next scheduled run, 0 when unscheduled",
		},
	)
)
