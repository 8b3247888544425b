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

// Package harness drives a raft.Node's event loop: it owns the single
// goroutine that calls Node.ProcessEvent, pumps ClockTicks on a
// timer, and shuttles messages between the node and a transport.
// Nothing outside this package ever calls ProcessEvent directly in
// production; tests are the only exception.
package harness

import (
	"context"
	"strconv"
	"time"

	"raftkv/internal/logging"
	"raftkv/internal/raft"
)

// Sender delivers an outbound raft.Message; it is satisfied by
// transport.TCPTransport and by any test double. transport.MemoryNetwork
// does not satisfy it, as its Send returns no error.
type Sender interface {
	Send(msg raft.Message) error
}

// Applier receives committed log entries in strict index order.
type Applier interface {
	Apply(batch raft.CommitBatch)
}

// Harness owns one Node and its event loop.
type Harness struct {
	node    *raft.Node
	sender  Sender
	applier Applier
	log     *logging.Logger

	tick time.Duration

	inbox chan raft.Message
	stop  chan struct{}
	done  chan struct{}
}

// New creates a Harness around node, delivering outbound messages via
// sender and committed batches to applier. tick is the ClockTick
// period (the "one tick" unit node's TickBounds are expressed in).
func New(node *raft.Node, sender Sender, applier Applier, tick time.Duration) *Harness {
	return &Harness{
		node:    node,
		sender:  sender,
		applier: applier,
		log:     logging.NewLogger("harness"),
		tick:    tick,
		inbox:   make(chan raft.Message, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Deliver enqueues an inbound message for the next event-loop
// iteration. Safe to call from any goroutine (typically the
// transport's accept loop).
func (h *Harness) Deliver(msg raft.Message) {
	select {
	case h.inbox <- msg:
	case <-h.stop:
	}
}

// Propose submits a client command to the node. It is only meaningful
// when this node is the leader; ErrNotLeader-shaped failures are the
// caller's responsibility to detect (see raft.Node.AddClientEntry).
func (h *Harness) Propose(item map[string]any) (raft.AddEntryResult, bool) {
	res, ok := h.node.AddClientEntry(item)
	if ok {
		h.node.BroadcastNow()
		h.drainOutbox()
	}
	return res, ok
}

// Run starts the event loop and blocks until ctx is cancelled or Stop
// is called.
func (h *Harness) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			if err := h.node.ProcessEvent(raft.ClockTick{}); err != nil {
				h.log.Error("clock tick processing failed", "error", err.Error())
				continue
			}
			h.drainOutbox()
			h.drainCommitted()
		case msg := <-h.inbox:
			if err := h.node.ProcessEvent(msg); err != nil {
				h.log.Warn("message processing failed", "error", err.Error(), "method", string(msg.Method))
				continue
			}
			h.drainOutbox()
			h.drainCommitted()
		}
	}
}

// Stop halts the event loop; Run returns once the current iteration
// completes.
func (h *Harness) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Harness) drainOutbox() {
	for _, msg := range h.node.DrainOutbox() {
		if err := h.sender.Send(msg); err != nil {
			h.log.Debug("send failed, will retry on next tick", "error", err.Error(), "recipient", strconv.Itoa(msg.RecipientID))
		}
	}
}

func (h *Harness) drainCommitted() {
	for _, batch := range h.node.DrainCommitted() {
		h.applier.Apply(batch)
	}
}
