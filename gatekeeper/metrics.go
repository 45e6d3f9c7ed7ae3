// Copyright 2025 Blink Labs Software
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

package gatekeeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	commands       *prometheus.CounterVec
	granted        prometheus.Counter
	revoked        *prometheus.CounterVec
	oracleFailures prometheus.Counter
	sweepDuration  prometheus.Histogram
	sweepChecked   prometheus.Counter
	sweepFailures  prometheus.Counter
}

func registerEngineMetrics(
	promRegistry prometheus.Registerer,
) *engineMetrics {
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
	}
	promautoFactory := promauto.With(promRegistry)
	return &engineMetrics{
		commands: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_commands_total",
			Help: "total commands processed, by command",
		}, []string{"command"}),
		granted: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_verifications_granted_total",
			Help: "total verifications granted",
		}),
		revoked: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_verifications_revoked_total",
			Help: "total verifications revoked, by mode (explicit or soft)",
		}, []string{"mode"}),
		oracleFailures: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_oracle_failures_total",
			Help: "total merit oracle call failures",
		}),
		sweepDuration: promautoFactory.NewHistogram(prometheus.HistogramOpts{
			Name:    "doorman_sweep_duration_seconds",
			Help:    "duration of revalidation sweeps",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		sweepChecked: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_sweep_participants_checked_total",
			Help: "total participants rechecked by the revalidation sweeper",
		}),
		sweepFailures: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_sweep_participant_failures_total",
			Help: "total participant rechecks that failed during sweeps",
		}),
	}
}
