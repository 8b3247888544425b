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

// Package raft implements the Raft consensus core: the log module, the
// inter-node message codec, and the per-node state machine. Nothing in
// this package performs I/O; callers drive it entirely through
// ProcessEvent and read its outputs from Node's outbound queues.
package raft

import "reflect"

// LogEntry is a single entry in a node's replicated log: the term in
// which the leader that created it was in office, and the opaque
// application command.
type LogEntry struct {
	Term uint64         `json:"term"`
	Item map[string]any `json:"item"`
}

// Log is a 1-indexed sequence of entries. Index 0 is the sentinel
// "before the log starts" and is never stored; Log[0] in the slice
// backing this type corresponds to log index 1.
type Log []LogEntry

// Len returns the highest valid log index (0 for an empty log).
func (l Log) Len() uint64 {
	return uint64(len(l))
}

// TermAt returns the term of the entry at the given 1-based index, or
// 0 for index 0 (the sentinel).
func (l Log) TermAt(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	return l[index-1].Term
}

// Slice returns the entries from index `from` (1-based, inclusive) to
// the end of the log. Slice(Len()+1) returns an empty slice.
func (l Log) Slice(from uint64) []LogEntry {
	if from == 0 {
		from = 1
	}
	if from > l.Len() {
		return nil
	}
	return l[from-1:]
}

// AppendEntries implements Raft's log consistency check and
// truncate-on-conflict rule (Raft paper, Figure 2, "AppendEntries RPC,
// Receiver implementation", rules 2-4).
//
// Indices are 1-based. If prevIndex == 0 the call is anchored at the
// start of the log and prevTerm is ignored. AppendEntries never
// mutates its argument; on success it returns a new Log reflecting the
// result, on failure it returns the original log unchanged and false.
//
// Calling AppendEntries twice with identical arguments returns the
// same resulting log and true both times (idempotence); a failed call
// never mutates the log (no-op on failure).
func AppendEntries(log Log, prevIndex, prevTerm uint64, entries []LogEntry) (Log, bool) {
	if prevIndex != 0 {
		if log.Len() < prevIndex {
			return log, false
		}
		if log.TermAt(prevIndex) != prevTerm {
			return log, false
		}
		for _, e := range entries {
			if e.Term < prevTerm {
				return log, false
			}
		}
	}
	for i := 0; i+1 < len(entries); i++ {
		if entries[i].Term > entries[i+1].Term {
			return log, false
		}
	}

	existing := log.Slice(prevIndex + 1)
	common := 0
	for common < len(entries) && common < len(existing) && entriesEqual(existing[common], entries[common]) {
		common++
	}
	if common == len(entries) {
		// Every incoming entry already matches; nothing to do.
		return log, true
	}

	out := make(Log, prevIndex+uint64(common), prevIndex+uint64(len(entries)))
	copy(out, log[:prevIndex+uint64(common)])
	out = append(out, entries[common:]...)
	return out, true
}

func entriesEqual(a, b LogEntry) bool {
	return a.Term == b.Term && reflect.DeepEqual(a.Item, b.Item)
}
