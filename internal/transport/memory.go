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

// Package transport carries raft.Message values between nodes: an
// in-memory MemoryNetwork for deterministic tests, and a real TCP
// transport for production use.
package transport

import (
	"math/rand"
	"sync"

	"raftkv/internal/raft"
)

// MemoryNetwork is a deterministic, in-process message bus for a
// fixed set of nodes. It supports injecting message loss, reordering,
// and whole-node disablement, so tests can drive the partitions and
// flaky links Raft is built to survive.
type MemoryNetwork struct {
	mu sync.Mutex

	numNodes int
	queues   map[int][]raft.Message
	disabled map[int]bool

	rng *rand.Rand

	// MessageFailureRate is the probability, in [0, 1], that any given
	// Send silently drops a message.
	MessageFailureRate float64
	// ShuffleMessages, when true, makes Receive return a random queued
	// message instead of the oldest one.
	ShuffleMessages bool
}

// NewMemoryNetwork creates a bus for numNodes nodes (IDs 0..numNodes-1).
// rng drives failure-rate and shuffle decisions; pass a seeded
// *rand.Rand for reproducible tests.
func NewMemoryNetwork(numNodes int, rng *rand.Rand) *MemoryNetwork {
	return &MemoryNetwork{
		numNodes: numNodes,
		queues:   make(map[int][]raft.Message, numNodes),
		disabled: make(map[int]bool),
		rng:      rng,
	}
}

// Disable makes every Receive for nodeID return nothing, simulating a
// crashed or partitioned node. Messages already sent to it still
// accumulate and will be delivered once re-enabled.
func (m *MemoryNetwork) Disable(nodeID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[nodeID] = true
}

// Enable reverses Disable.
func (m *MemoryNetwork) Enable(nodeID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.disabled, nodeID)
}

// Send enqueues msg for msg.RecipientID, unless the simulated failure
// rate drops it.
func (m *MemoryNetwork) Send(msg raft.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng.Float64() < m.MessageFailureRate {
		return
	}
	m.queues[msg.RecipientID] = append(m.queues[msg.RecipientID], msg)
}

// Receive pops and returns one queued message for nodeID, or ok=false
// if there is none or nodeID is disabled.
func (m *MemoryNetwork) Receive(nodeID int) (raft.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled[nodeID] {
		return raft.Message{}, false
	}
	queue := m.queues[nodeID]
	if len(queue) == 0 {
		return raft.Message{}, false
	}

	var idx int
	if m.ShuffleMessages {
		idx = m.rng.Intn(len(queue))
	} else {
		idx = 0
	}
	msg := queue[idx]
	m.queues[nodeID] = append(queue[:idx], queue[idx+1:]...)
	return msg, true
}

// ReceiveAll drains every currently queued message for nodeID, in
// delivery order (or queue order, if ShuffleMessages already
// reordered them).
func (m *MemoryNetwork) ReceiveAll(nodeID int) []raft.Message {
	var out []raft.Message
	for {
		msg, ok := m.Receive(nodeID)
		if !ok {
			break
		}
		out = append(out, msg)
	}
	return out
}

// Pending reports how many messages are queued for nodeID.
func (m *MemoryNetwork) Pending(nodeID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[nodeID])
}
