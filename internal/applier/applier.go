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

// Package applier implements the replicated key/value state machine:
// the thing that actually executes committed log entries. It is the
// only component in raftkv allowed to mutate application state, and
// it does so strictly in the index order raft.Node commits entries.
package applier

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	raftkverrors "raftkv/internal/errors"
	"raftkv/internal/raft"
)

// Op names the operation a log entry's Item encodes.
type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// KVStore is the state machine raftkv replicates: a flat string/string
// map driven entirely by committed log entries.
type KVStore struct {
	mu            sync.RWMutex
	data          map[string]string
	lastApplied   uint64
	collator      *collate.Collator
	onApply       []func(index uint64, item map[string]any)
}

// NewKVStore creates an empty store. locale controls the sort order
// List returns keys in; an empty locale falls back to English rules.
func NewKVStore(locale string) *KVStore {
	tag := language.Make(locale)
	if tag == language.Und {
		tag = language.English
	}
	return &KVStore{
		data:     make(map[string]string),
		collator: collate.New(tag, collate.Loose),
	}
}

// Apply implements harness.Applier: it executes every entry in batch,
// in order, and records the new application index. Calling Apply
// twice with a batch whose FirstIndex has already been applied is a
// programming error in the caller (the harness guarantees monotonic,
// gap-free delivery) and panics rather than silently corrupting state.
func (s *KVStore) Apply(batch raft.CommitBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expected := s.lastApplied + 1
	if batch.FirstIndex != expected {
		panic(fmt.Sprintf("applier: out-of-order commit batch: expected first index %d, got %d", expected, batch.FirstIndex))
	}

	for i, entry := range batch.Entries {
		s.applyEntry(entry)
		s.lastApplied = batch.FirstIndex + uint64(i)
		for _, fn := range s.onApply {
			fn(s.lastApplied, entry.Item)
		}
	}
}

func (s *KVStore) applyEntry(entry raft.LogEntry) {
	op, _ := entry.Item["op"].(string)
	key, _ := entry.Item["key"].(string)
	switch Op(op) {
	case OpSet:
		value, _ := entry.Item["value"].(string)
		s.data[key] = value
	case OpDelete:
		delete(s.data, key)
	}
}

// OnApply registers fn to be invoked synchronously, inside Apply,
// after each individual entry takes effect. Used by the audit package
// to record a trail of applied operations without coupling this type
// to it directly.
func (s *KVStore) OnApply(fn func(index uint64, item map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApply = append(s.onApply, fn)
}

// Get reads a single key. ok is false when the key does not exist.
func (s *KVStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// List returns every key in collated sort order, along with its
// value. The collation passed to NewKVStore governs the order.
func (s *KVStore) List() []KeyValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KeyValue, 0, len(s.data))
	for k, v := range s.data {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return s.collator.CompareString(out[i].Key, out[j].Key) < 0
	})
	return out
}

// LastApplied returns the highest log index applied so far.
func (s *KVStore) LastApplied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastApplied
}

// KeyValue is one entry returned by List.
type KeyValue struct {
	Key   string
	Value string
}

// SetItem builds the Item payload for a client_add_entry set
// operation.
func SetItem(key, value string) map[string]any {
	return map[string]any{"op": string(OpSet), "key": key, "value": value}
}

// DeleteItem builds the Item payload for a client_add_entry delete
// operation.
func DeleteItem(key string) map[string]any {
	return map[string]any{"op": string(OpDelete), "key": key}
}

// Proposer is satisfied by harness.Harness; kept as a narrow interface
// here so the applier package does not import harness.
type Proposer interface {
	Propose(item map[string]any) (raft.AddEntryResult, bool)
}

// Client wraps a Proposer with the NotLeader error the rest of the
// system expects when a set/delete lands on a non-leader node.
type Client struct {
	proposer Proposer
}

// NewClient wraps proposer.
func NewClient(proposer Proposer) *Client {
	return &Client{proposer: proposer}
}

// Set proposes a set operation and returns once it has been appended
// to the leader's own log (not necessarily yet committed).
func (c *Client) Set(key, value string) (raft.AddEntryResult, error) {
	res, ok := c.proposer.Propose(SetItem(key, value))
	if !ok {
		return raft.AddEntryResult{}, raftkverrors.NotLeader("")
	}
	return res, nil
}

// Delete proposes a delete operation.
func (c *Client) Delete(key string) (raft.AddEntryResult, error) {
	res, ok := c.proposer.Propose(DeleteItem(key))
	if !ok {
		return raft.AddEntryResult{}, raftkverrors.NotLeader("")
	}
	return res, nil
}
