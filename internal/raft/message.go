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

package raft

import (
	"encoding/json"
	"fmt"
)

// Method identifies the kind of inter-node RPC a Message carries. It is
// a closed set: decoding maps the wire's method tag string into one of
// these variants, and an unrecognized tag is a fatal decode error
// (see UnknownMethod in package errors).
type Method string

const (
	MethodRequestVote             Method = "request_vote"
	MethodRequestVoteResponse     Method = "request_vote_response"
	MethodFollowerAppendEntries   Method = "follower_append_entries"
	MethodLeaderAppendEntriesResp Method = "leader_append_entries_response"
	MethodRejectMessage           Method = "reject_message"
)

// knownMethods is the closed set of methods a decoded Message may carry.
var knownMethods = map[Method]bool{
	MethodRequestVote:             true,
	MethodRequestVoteResponse:     true,
	MethodFollowerAppendEntries:   true,
	MethodLeaderAppendEntriesResp: true,
	MethodRejectMessage:           true,
}

// RequestVoteArgs is the payload of a request_vote RPC.
type RequestVoteArgs struct {
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// RequestVoteResponseArgs is the payload of a request_vote_response RPC.
type RequestVoteResponseArgs struct {
	VoteGranted bool `json:"vote_granted"`
}

// FollowerAppendEntriesArgs is the payload of a follower_append_entries RPC.
type FollowerAppendEntriesArgs struct {
	PrevIndex         uint64     `json:"prev_index"`
	PrevTerm          uint64     `json:"prev_term"`
	Entries           []LogEntry `json:"entries"`
	LeaderCommitIndex uint64     `json:"leader_commit_index"`
}

// LeaderAppendEntriesResponseArgs is the payload of a
// leader_append_entries_response RPC. MatchIndex is nil when the
// follower rejected the consistency check.
type LeaderAppendEntriesResponseArgs struct {
	MatchIndex *uint64 `json:"match_index,omitempty"`
}

// RejectMessageArgs is the (empty) payload of a reject_message reply;
// the rejecting node's term is carried by Message.CurrentTerm.
type RejectMessageArgs struct{}

// Message is an inter-node RPC envelope. Args holds one of the typed
// *Args structs above, chosen by Method.
type Message struct {
	SenderID    int    `json:"sender_id"`
	RecipientID int    `json:"recipient_id"`
	Method      Method `json:"method"`
	CurrentTerm uint64 `json:"current_term"`
	Args        any    `json:"args"`
}

// wireMessage is the JSON-serializable shape of Message, with Args kept
// as raw JSON until Method tells us how to decode it.
type wireMessage struct {
	SenderID    int             `json:"sender_id"`
	RecipientID int             `json:"recipient_id"`
	Method      Method          `json:"method"`
	CurrentTerm uint64          `json:"current_term"`
	Args        json.RawMessage `json:"args"`
}

// Encode serializes a Message to its wire byte representation.
func Encode(m Message) ([]byte, error) {
	args, err := json.Marshal(m.Args)
	if err != nil {
		return nil, fmt.Errorf("raft: encode args: %w", err)
	}
	return json.Marshal(wireMessage{
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Method:      m.Method,
		CurrentTerm: m.CurrentTerm,
		Args:        args,
	})
}

// Decode parses the wire byte representation of a Message. An unknown
// method tag, or a payload that cannot be unmarshaled, is reported as
// a plain error for the caller to classify; transport.ReadFrame wraps
// it as errors.MalformedMessage.
func Decode(b []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return Message{}, fmt.Errorf("raft: decode envelope: %w", err)
	}
	if !knownMethods[w.Method] {
		return Message{}, fmt.Errorf("raft: unknown method %q", w.Method)
	}

	m := Message{
		SenderID:    w.SenderID,
		RecipientID: w.RecipientID,
		Method:      w.Method,
		CurrentTerm: w.CurrentTerm,
	}

	var err error
	switch w.Method {
	case MethodRequestVote:
		var a RequestVoteArgs
		err = json.Unmarshal(w.Args, &a)
		m.Args = a
	case MethodRequestVoteResponse:
		var a RequestVoteResponseArgs
		err = json.Unmarshal(w.Args, &a)
		m.Args = a
	case MethodFollowerAppendEntries:
		var a FollowerAppendEntriesArgs
		err = json.Unmarshal(w.Args, &a)
		m.Args = a
	case MethodLeaderAppendEntriesResp:
		var a LeaderAppendEntriesResponseArgs
		err = json.Unmarshal(w.Args, &a)
		m.Args = a
	case MethodRejectMessage:
		var a RejectMessageArgs
		err = json.Unmarshal(w.Args, &a)
		m.Args = a
	}
	if err != nil {
		return Message{}, fmt.Errorf("raft: decode args for %s: %w", w.Method, err)
	}
	return m, nil
}
