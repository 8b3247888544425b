/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics exposes a node's Raft state as Prometheus metrics:
// current role and term, log length, commit index, and counters for
// elections and RPC failures. None of it feeds back into consensus
// decisions; it exists purely for operators.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raftkv/internal/raft"
)

// Registry bundles the metrics one raftkv node exports.
type Registry struct {
	reg *prometheus.Registry

	role        *prometheus.GaugeVec
	term        prometheus.Gauge
	logLength   prometheus.Gauge
	commitIndex prometheus.Gauge
	appliedIdx  prometheus.Gauge

	elections    prometheus.Counter
	rpcFailures  *prometheus.CounterVec
	entriesAppliedTotal prometheus.Counter
}

// NewRegistry creates a Registry labeled with this node's ID.
func NewRegistry(nodeID int) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"node_id": strconv.Itoa(nodeID)}

	r := &Registry{
		reg: reg,
		role: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "raftkv",
			Name:        "role",
			Help:        "1 for the currently active role (follower/candidate/leader), 0 otherwise.",
			ConstLabels: labels,
		}, []string{"role"}),
		term: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftkv", Name: "current_term", Help: "Current Raft term.", ConstLabels: labels,
		}),
		logLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftkv", Name: "log_length", Help: "Number of entries in the local log.", ConstLabels: labels,
		}),
		commitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftkv", Name: "commit_index", Help: "Highest committed log index.", ConstLabels: labels,
		}),
		appliedIdx: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raftkv", Name: "application_index", Help: "Highest log index applied to the state machine.", ConstLabels: labels,
		}),
		elections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raftkv", Name: "elections_started_total", Help: "Number of times this node became a candidate.", ConstLabels: labels,
		}),
		rpcFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raftkv", Name: "rpc_failures_total", Help: "RPC send failures by error category.", ConstLabels: labels,
		}, []string{"category"}),
		entriesAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raftkv", Name: "entries_applied_total", Help: "Number of log entries applied to the state machine.", ConstLabels: labels,
		}),
	}

	reg.MustRegister(r.role, r.term, r.logLength, r.commitIndex, r.appliedIdx, r.elections, r.rpcFailures, r.entriesAppliedTotal)
	return r
}

// Handler returns an http.Handler serving this registry in the
// Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Observe snapshots a node's current state into the gauges. Call this
// periodically (e.g. once per tick) from the harness.
func (r *Registry) Observe(n *raft.Node) {
	for _, role := range []raft.Role{raft.Follower, raft.Candidate, raft.Leader} {
		v := 0.0
		if n.GetRole() == role {
			v = 1.0
		}
		r.role.WithLabelValues(role.String()).Set(v)
	}
	r.term.Set(float64(n.GetTerm()))
	r.logLength.Set(float64(n.LogLen()))
	r.commitIndex.Set(float64(n.CommitIndex()))
	r.appliedIdx.Set(float64(n.ApplicationIndex()))
}

// RecordElectionStarted increments the election counter.
func (r *Registry) RecordElectionStarted() {
	r.elections.Inc()
}

// RecordRPCFailure increments the RPC-failure counter for category
// (e.g. "network_down", "malformed_message").
func (r *Registry) RecordRPCFailure(category string) {
	r.rpcFailures.WithLabelValues(category).Inc()
}

// RecordEntriesApplied increments the applied-entries counter by n.
func (r *Registry) RecordEntriesApplied(n int) {
	r.entriesAppliedTotal.Add(float64(n))
}
