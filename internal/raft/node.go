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
	"fmt"
	"math/rand"
	"sort"
)

// Role is the role a Node holds at any given moment.
type Role int32

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "FOLLOWER"
	case Candidate:
		return "CANDIDATE"
	case Leader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// ClockTick is the periodic timer event fed into ProcessEvent.
type ClockTick struct{}

// Event is either a ClockTick or a Message. It exists purely to give
// ProcessEvent a single typed entry point, per spec: every state
// mutation happens inside that one call.
type Event any

// TickBounds configures the election timeout jitter range and
// heartbeat cadence, all expressed in ticks (one tick = one ClockTick).
type TickBounds struct {
	ElectionTimeoutLow  uint
	ElectionTimeoutHigh uint
	HeartbeatInterval   uint
}

// DefaultTickBounds matches the paper's suggested ranges for a 10ms
// tick: a 1000-2000ms election timeout and a 50ms heartbeat.
func DefaultTickBounds() TickBounds {
	return TickBounds{ElectionTimeoutLow: 100, ElectionTimeoutHigh: 200, HeartbeatInterval: 5}
}

// CommitBatch is a run of newly committed entries, surfaced to the
// applier in strict index order. FirstIndex is the 1-based index of
// Entries[0].
type CommitBatch struct {
	FirstIndex uint64
	Entries    []LogEntry
}

// Node is the per-node Raft state machine described by the design:
// role, term, vote, log, commit index, leader-volatile arrays, timers,
// and the outbound queues that ProcessEvent populates. Fields are
// written by ProcessEvent, AddClientEntry, BroadcastNow, DrainOutbox,
// DrainCommitted, RestoreState and ForceLeader.
type Node struct {
	ID       int
	NumPeers int
	rng      *rand.Rand
	bounds   TickBounds

	currentTerm uint64
	votedFor    *int
	log         Log

	commitIndex       uint64
	applicationIndex  uint64
	electionTimeout   uint
	ticksSinceReset   uint
	role              Role

	// Leader-only.
	nextIndex  []uint64
	matchIndex []uint64

	// Candidate-only.
	votes map[int]bool

	Outbox    []Message
	Committed []CommitBatch

	// OnRoleChange, when set, is invoked synchronously whenever the
	// node's role changes. It exists purely for observability (metrics,
	// audit) and must never be used to influence state transitions.
	OnRoleChange func(from, to Role, term uint64)
}

// NewNode creates a Node in the initial state required by the design:
// FOLLOWER, term 1, empty log, no vote. rng drives election-timeout
// jitter and must be seeded by the caller for deterministic tests.
func NewNode(id, numPeers int, rng *rand.Rand, bounds TickBounds) *Node {
	n := &Node{
		ID:          id,
		NumPeers:    numPeers,
		rng:         rng,
		bounds:      bounds,
		currentTerm: 1,
		role:        Follower,
	}
	n.electionTimeout = n.drawElectionTimeout()
	return n
}

// ForceLeader bootstraps a node directly into LEADER without an
// election, per spec §4.6's "convenience, not required by the
// protocol" initial-leader allowance. Only valid immediately after
// NewNode.
func (n *Node) ForceLeader() {
	n.becomeLeader()
}

func (n *Node) drawElectionTimeout() uint {
	lo, hi := n.bounds.ElectionTimeoutLow, n.bounds.ElectionTimeoutHigh
	if hi <= lo {
		return lo
	}
	return lo + uint(n.rng.Intn(int(hi-lo+1)))
}

// Role/Term/Log accessors used by transport, applier, and metrics code
// outside this package; they never mutate state.

func (n *Node) GetRole() Role         { return n.role }
func (n *Node) GetTerm() uint64       { return n.currentTerm }
func (n *Node) LogLen() uint64        { return n.log.Len() }
func (n *Node) CommitIndex() uint64   { return n.commitIndex }
func (n *Node) ApplicationIndex() uint64 { return n.applicationIndex }

// GetVotedFor returns the node this node voted for in its current
// term, or nil if it has not voted.
func (n *Node) GetVotedFor() *int {
	if n.votedFor == nil {
		return nil
	}
	v := *n.votedFor
	return &v
}

// GetLog returns a copy of the full log, for persistence.
func (n *Node) GetLog() Log {
	return append(Log(nil), n.log...)
}

// RestoreState resets a freshly constructed Node's term/vote/log from
// previously persisted state. Only valid before the node processes any
// event; callers typically call this once, immediately after NewNode.
func (n *Node) RestoreState(term uint64, votedFor *int, log Log) {
	n.currentTerm = term
	if votedFor != nil {
		v := *votedFor
		n.votedFor = &v
	} else {
		n.votedFor = nil
	}
	n.log = append(Log(nil), log...)
}

// NextIndex returns a copy of the leader's next_index array. Valid
// only while the node is LEADER; returns nil otherwise.
func (n *Node) NextIndex() []uint64 {
	if n.role != Leader {
		return nil
	}
	out := make([]uint64, len(n.nextIndex))
	copy(out, n.nextIndex)
	return out
}

// MatchIndex returns a copy of the leader's match_index array. Valid
// only while the node is LEADER; returns nil otherwise.
func (n *Node) MatchIndex() []uint64 {
	if n.role != Leader {
		return nil
	}
	out := make([]uint64, len(n.matchIndex))
	copy(out, n.matchIndex)
	return out
}

func (n *Node) peers() []int {
	out := make([]int, 0, n.NumPeers-1)
	for i := 0; i < n.NumPeers; i++ {
		if i != n.ID {
			out = append(out, i)
		}
	}
	return out
}

func (n *Node) setRole(to Role) {
	from := n.role
	n.role = to
	if from != to && n.OnRoleChange != nil {
		n.OnRoleChange(from, to, n.currentTerm)
	}
}

// resetElectionTimer redraws the timeout and zeroes the tick counter.
// Called on term change, a heartbeat that passes the term check, and
// a granted vote.
func (n *Node) resetElectionTimer() {
	n.ticksSinceReset = 0
	n.electionTimeout = n.drawElectionTimeout()
}

// becomeFollower clears candidate/leader volatile state and switches
// role. It does NOT touch currentTerm/votedFor/election timer: per the
// message guard's ordering requirement, those are the caller's
// responsibility, applied AFTER this call returns.
func (n *Node) becomeFollower() {
	n.setRole(Follower)
	n.votes = nil
	n.nextIndex = nil
	n.matchIndex = nil
}

// becomeCandidate runs the ordered side effects from spec §3: bump
// term, vote for self, reset timer, clear volatile state, cast
// self-vote, broadcast RequestVote.
func (n *Node) becomeCandidate() {
	n.currentTerm++
	self := n.ID
	n.votedFor = &self
	n.resetElectionTimer()
	n.nextIndex = nil
	n.matchIndex = nil
	n.setRole(Candidate)

	n.votes = map[int]bool{n.ID: true}

	lastIndex := n.log.Len()
	lastTerm := n.log.TermAt(lastIndex)
	for _, p := range n.peers() {
		n.enqueue(Message{
			SenderID:    n.ID,
			RecipientID: p,
			Method:      MethodRequestVote,
			CurrentTerm: n.currentTerm,
			Args: RequestVoteArgs{
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			},
		})
	}
}

// becomeLeader initializes next_index/match_index and immediately
// broadcasts a heartbeat, per spec §3/§4.6.
func (n *Node) becomeLeader() {
	n.setRole(Leader)
	n.votes = nil

	n.nextIndex = make([]uint64, n.NumPeers)
	n.matchIndex = make([]uint64, n.NumPeers)
	for i := range n.nextIndex {
		n.nextIndex[i] = n.log.Len() + 1
	}
	n.matchIndex[n.ID] = n.log.Len()

	for _, p := range n.peers() {
		n.enqueue(n.buildAppendEntries(p))
	}
}

func (n *Node) enqueue(m Message) {
	n.Outbox = append(n.Outbox, m)
}

func (n *Node) buildAppendEntries(peer int) Message {
	ni := n.nextIndex[peer]
	prevIndex := ni - 1
	prevTerm := n.log.TermAt(prevIndex)
	entries := n.log.Slice(ni)
	return Message{
		SenderID:    n.ID,
		RecipientID: peer,
		Method:      MethodFollowerAppendEntries,
		CurrentTerm: n.currentTerm,
		Args: FollowerAppendEntriesArgs{
			PrevIndex:         prevIndex,
			PrevTerm:          prevTerm,
			Entries:           append([]LogEntry(nil), entries...),
			LeaderCommitIndex: n.commitIndex,
		},
	}
}

// ProcessEvent applies one inbound message or clock tick. It is
// deterministic given (state, event): same state + same event always
// produces the same resulting state and outbox/committed contents.
func (n *Node) ProcessEvent(event Event) error {
	switch e := event.(type) {
	case ClockTick:
		n.onClockTick()
		return nil
	case Message:
		return n.onMessage(e)
	default:
		return fmt.Errorf("raft: unrecognized event type %T", event)
	}
}

func (n *Node) onClockTick() {
	n.ticksSinceReset++
	if n.role == Leader {
		if n.ticksSinceReset >= n.bounds.HeartbeatInterval {
			for _, p := range n.peers() {
				n.enqueue(n.buildAppendEntries(p))
			}
			n.ticksSinceReset = 0
		}
		return
	}
	if n.ticksSinceReset >= n.electionTimeout {
		n.becomeCandidate()
	}
}

func (n *Node) onMessage(m Message) error {
	if m.CurrentTerm < n.currentTerm {
		n.enqueue(Message{
			SenderID:    n.ID,
			RecipientID: m.SenderID,
			Method:      MethodRejectMessage,
			CurrentTerm: n.currentTerm,
			Args:        RejectMessageArgs{},
		})
		return nil
	}
	if m.CurrentTerm > n.currentTerm {
		// Ordering matters: become_follower first, THEN bump the term.
		// Reversing this lets a demoted candidate re-vote for itself in
		// the new term and livelock (see design notes).
		n.becomeFollower()
		n.currentTerm = m.CurrentTerm
		n.votedFor = nil
		n.resetElectionTimer()
	}

	switch m.Method {
	case MethodRequestVote:
		args, ok := m.Args.(RequestVoteArgs)
		if !ok {
			return fmt.Errorf("raft: request_vote args type %T", m.Args)
		}
		n.handleRequestVote(m.SenderID, args)
	case MethodRequestVoteResponse:
		args, ok := m.Args.(RequestVoteResponseArgs)
		if !ok {
			return fmt.Errorf("raft: request_vote_response args type %T", m.Args)
		}
		n.handleRequestVoteResponse(m.SenderID, m.CurrentTerm, args)
	case MethodFollowerAppendEntries:
		args, ok := m.Args.(FollowerAppendEntriesArgs)
		if !ok {
			return fmt.Errorf("raft: follower_append_entries args type %T", m.Args)
		}
		n.handleFollowerAppendEntries(m.SenderID, args)
	case MethodLeaderAppendEntriesResp:
		args, ok := m.Args.(LeaderAppendEntriesResponseArgs)
		if !ok {
			return fmt.Errorf("raft: leader_append_entries_response args type %T", m.Args)
		}
		n.handleLeaderAppendEntriesResponse(m.SenderID, args)
	case MethodRejectMessage:
		// A reply to a stale message of ours; no state to update beyond
		// the term-check guard already run above.
	default:
		return fmt.Errorf("raft: unknown method %q", m.Method)
	}
	return nil
}

func (n *Node) handleRequestVote(sender int, args RequestVoteArgs) {
	grant := (n.votedFor == nil || *n.votedFor == sender) && n.candidateLogUpToDate(args)
	if grant {
		n.votedFor = &sender
		n.resetElectionTimer()
	}
	n.enqueue(Message{
		SenderID:    n.ID,
		RecipientID: sender,
		Method:      MethodRequestVoteResponse,
		CurrentTerm: n.currentTerm,
		Args:        RequestVoteResponseArgs{VoteGranted: grant},
	})
}

func (n *Node) candidateLogUpToDate(args RequestVoteArgs) bool {
	ourIndex := n.log.Len()
	ourTerm := n.log.TermAt(ourIndex)
	if args.LastLogTerm != ourTerm {
		return args.LastLogTerm > ourTerm
	}
	return args.LastLogIndex >= ourIndex
}

func (n *Node) handleRequestVoteResponse(sender int, msgTerm uint64, args RequestVoteResponseArgs) {
	if n.role != Candidate || msgTerm != n.currentTerm {
		return
	}
	n.votes[sender] = args.VoteGranted
	if !args.VoteGranted {
		return
	}
	granted := 0
	for _, v := range n.votes {
		if v {
			granted++
		}
	}
	if granted > n.NumPeers/2 {
		n.becomeLeader()
	}
}

func (n *Node) handleFollowerAppendEntries(sender int, args FollowerAppendEntriesArgs) {
	n.resetElectionTimer()

	newLog, ok := AppendEntries(n.log, args.PrevIndex, args.PrevTerm, args.Entries)
	if !ok {
		n.enqueue(Message{
			SenderID:    n.ID,
			RecipientID: sender,
			Method:      MethodLeaderAppendEntriesResp,
			CurrentTerm: n.currentTerm,
			Args:        LeaderAppendEntriesResponseArgs{MatchIndex: nil},
		})
		return
	}
	n.log = newLog
	matchIndex := args.PrevIndex + uint64(len(args.Entries))

	// Only ever advance commitIndex on a successful consistency check;
	// doing so on failure would commit entries never actually prefixed
	// by prev_index/prev_term on this node.
	if args.LeaderCommitIndex > n.commitIndex {
		newCommit := args.LeaderCommitIndex
		if n.log.Len() < newCommit {
			newCommit = n.log.Len()
		}
		n.advanceCommitIndex(newCommit)
	}

	n.enqueue(Message{
		SenderID:    n.ID,
		RecipientID: sender,
		Method:      MethodLeaderAppendEntriesResp,
		CurrentTerm: n.currentTerm,
		Args:        LeaderAppendEntriesResponseArgs{MatchIndex: &matchIndex},
	})
}

func (n *Node) handleLeaderAppendEntriesResponse(sender int, args LeaderAppendEntriesResponseArgs) {
	if n.role != Leader {
		return
	}
	if args.MatchIndex != nil {
		n.nextIndex[sender] = *args.MatchIndex + 1
		n.matchIndex[sender] = *args.MatchIndex
		n.updateCommitIndexFromMatches()
		return
	}
	if n.nextIndex[sender] > 1 {
		n.nextIndex[sender]--
	}
	n.enqueue(n.buildAppendEntries(sender))
}

// updateCommitIndexFromMatches implements §4.5: commit index only
// ever advances to an index whose entry is from the leader's current
// term, replicated on a strict majority (Raft Figure 8 safety).
func (n *Node) updateCommitIndexFromMatches() {
	matches := append([]uint64(nil), n.matchIndex...)
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	majorityMatch := matches[n.NumPeers/2]

	if majorityMatch > n.commitIndex && n.log.TermAt(majorityMatch) == n.currentTerm {
		n.advanceCommitIndex(majorityMatch)
	}
}

// advanceCommitIndex bumps commitIndex, emits the newly committed
// range as one batch, and keeps applicationIndex in lockstep, per
// spec's "application_index == commit_index after each commit-index
// advance" invariant.
func (n *Node) advanceCommitIndex(newCommit uint64) {
	if newCommit <= n.commitIndex {
		return
	}
	first := n.commitIndex + 1
	entries := append([]LogEntry(nil), n.log.Slice(first)[:newCommit-first+1]...)
	n.Committed = append(n.Committed, CommitBatch{FirstIndex: first, Entries: entries})
	n.commitIndex = newCommit
	n.applicationIndex = n.commitIndex
}

// AddEntryResult is returned by AddClientEntry.
type AddEntryResult struct {
	Term  uint64
	Index uint64
}

// AddClientEntry implements client_add_entry from spec §4.3: leaders
// append to their own log and return {term, index}; non-leaders
// return ErrNotLeader-shaped failure via the ok=false return, and the
// caller is expected to retry against another node. Replication to
// followers happens on the next heartbeat (or immediately, at the
// caller's option, by also draining Outbox after calling this).
func (n *Node) AddClientEntry(item map[string]any) (AddEntryResult, bool) {
	if n.role != Leader {
		return AddEntryResult{}, false
	}
	entry := LogEntry{Term: n.currentTerm, Item: item}
	newLog, ok := AppendEntries(n.log, n.log.Len(), n.log.TermAt(n.log.Len()), []LogEntry{entry})
	if !ok {
		// Cannot happen: appending a single current-or-higher-term entry
		// at the end of our own log always satisfies the consistency
		// check we just derived prev_index/prev_term from.
		return AddEntryResult{}, false
	}
	n.log = newLog
	n.matchIndex[n.ID] = n.log.Len()
	n.nextIndex[n.ID] = n.log.Len() + 1
	n.updateCommitIndexFromMatches()
	return AddEntryResult{Term: entry.Term, Index: n.log.Len()}, true
}

// BroadcastNow forces an immediate AppendEntries broadcast to every
// peer, bypassing the heartbeat-interval wait. Leaders call this right
// after AddClientEntry when low latency matters more than batching.
func (n *Node) BroadcastNow() {
	if n.role != Leader {
		return
	}
	for _, p := range n.peers() {
		n.enqueue(n.buildAppendEntries(p))
	}
}

// DrainOutbox removes and returns all queued outbound messages.
func (n *Node) DrainOutbox() []Message {
	out := n.Outbox
	n.Outbox = nil
	return out
}

// DrainCommitted removes and returns all queued commit batches.
func (n *Node) DrainCommitted() []CommitBatch {
	out := n.Committed
	n.Committed = nil
	return out
}
