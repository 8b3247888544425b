package raft

import (
	"math/rand"
	"testing"
)

// cluster is a minimal in-test harness that wires N nodes together with
// an in-memory, lossless, FIFO message bus. It exists only to drive
// ProcessEvent deterministically in these tests; the real network
// story lives in package transport.
type cluster struct {
	nodes []*Node
	queue []Message
}

func newCluster(t *testing.T, n int, bounds TickBounds) *cluster {
	t.Helper()
	c := &cluster{nodes: make([]*Node, n)}
	for i := 0; i < n; i++ {
		c.nodes[i] = NewNode(i, n, rand.New(rand.NewSource(int64(i)+1)), bounds)
	}
	return c
}

func (c *cluster) drain(i int) {
	for _, m := range c.nodes[i].DrainOutbox() {
		c.queue = append(c.queue, m)
	}
}

func (c *cluster) drainAll() {
	for i := range c.nodes {
		c.drain(i)
	}
}

func (c *cluster) deliverAll(t *testing.T) {
	t.Helper()
	for len(c.queue) > 0 {
		m := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.nodes[m.RecipientID].ProcessEvent(m); err != nil {
			t.Fatalf("node %d failed to process message: %v", m.RecipientID, err)
		}
		c.drain(m.RecipientID)
	}
}

func (c *cluster) tickAll(t *testing.T) {
	t.Helper()
	for i := range c.nodes {
		if err := c.nodes[i].ProcessEvent(ClockTick{}); err != nil {
			t.Fatalf("node %d failed to process tick: %v", i, err)
		}
	}
	c.drainAll()
}

func (c *cluster) leader() *Node {
	for _, n := range c.nodes {
		if n.GetRole() == Leader {
			return n
		}
	}
	return nil
}

func (c *cluster) runUntilElection(t *testing.T, maxTicks int) *Node {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		c.tickAll(t)
		c.deliverAll(t)
		if l := c.leader(); l != nil {
			return l
		}
	}
	return nil
}

func TestElectionProducesExactlyOneLeaderPerTerm(t *testing.T) {
	bounds := TickBounds{ElectionTimeoutLow: 5, ElectionTimeoutHigh: 10, HeartbeatInterval: 2}
	c := newCluster(t, 5, bounds)

	leader := c.runUntilElection(t, 200)
	if leader == nil {
		t.Fatalf("no leader elected within tick budget")
	}

	leaders := 0
	for _, n := range c.nodes {
		if n.GetRole() == Leader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Fatalf("expected exactly one leader, got %d", leaders)
	}
}

func TestTwoNodeAppendReplicatesToFollower(t *testing.T) {
	bounds := TickBounds{ElectionTimeoutLow: 1000, ElectionTimeoutHigh: 1000, HeartbeatInterval: 1}
	c := newCluster(t, 2, bounds)
	c.nodes[0].ForceLeader()
	c.drain(0)
	c.deliverAll(t)

	res, ok := c.nodes[0].AddClientEntry(map[string]any{"op": "set", "key": "a", "value": "1"})
	if !ok {
		t.Fatalf("expected leader to accept client entry")
	}
	c.nodes[0].BroadcastNow()
	c.drain(0)
	c.deliverAll(t)

	if c.nodes[1].LogLen() != 1 {
		t.Fatalf("expected follower log length 1, got %d", c.nodes[1].LogLen())
	}
	if c.nodes[0].CommitIndex() != res.Index {
		t.Fatalf("expected leader commit index %d, got %d", res.Index, c.nodes[0].CommitIndex())
	}
}

func TestFigure7StyleLogSynchronization(t *testing.T) {
	bounds := TickBounds{ElectionTimeoutLow: 1000, ElectionTimeoutHigh: 1000, HeartbeatInterval: 1}
	c := newCluster(t, 3, bounds)
	c.nodes[0].ForceLeader()
	c.drain(0)
	c.deliverAll(t)

	// Follower 2 falls behind by being cut off from the bus for a round.
	for i := 0; i < 3; i++ {
		c.nodes[0].AddClientEntry(map[string]any{"op": "set", "key": "k", "value": i})
	}
	c.nodes[0].BroadcastNow()

	// Drop every message addressed to node 2 for this round, simulating
	// a partition; node 1 still catches up fully.
	c.drain(0)
	filtered := c.queue[:0]
	for _, m := range c.queue {
		if m.RecipientID != 2 {
			filtered = append(filtered, m)
		}
	}
	c.queue = filtered
	c.deliverAll(t)

	if c.nodes[1].LogLen() != 3 {
		t.Fatalf("expected caught-up follower log length 3, got %d", c.nodes[1].LogLen())
	}
	if c.nodes[2].LogLen() != 0 {
		t.Fatalf("expected partitioned follower untouched, got length %d", c.nodes[2].LogLen())
	}

	// Reconnect: next heartbeat carries the backlog to node 2.
	c.nodes[0].BroadcastNow()
	c.drain(0)
	c.deliverAll(t)

	if c.nodes[2].LogLen() != 3 {
		t.Fatalf("expected reconnected follower to catch up, got length %d", c.nodes[2].LogLen())
	}
}

func TestCommitIndexDoesNotAdvanceOnPriorTermEntryAlone(t *testing.T) {
	// Figure 8 safety: a leader must not commit an entry from a prior
	// term purely because it is replicated on a majority; it commits
	// only once one of its OWN term's entries reaches majority, which
	// carries the prior entry with it.
	n := NewNode(0, 3, rand.New(rand.NewSource(1)), DefaultTickBounds())
	n.currentTerm = 2
	n.log = Log{{Term: 1, Item: map[string]any{"k": "v"}}}
	n.becomeLeader()
	n.DrainOutbox()

	// Entry 1 (term 1, not this leader's term) is replicated on a
	// majority, but no term-2 entry exists yet: commit must not advance.
	n.matchIndex[1] = 1
	n.updateCommitIndexFromMatches()
	if n.CommitIndex() != 0 {
		t.Fatalf("must not commit a prior-term entry on majority replication alone, got commitIndex %d", n.CommitIndex())
	}

	// Leader appends its own term-2 entry; once it too reaches
	// majority, both entries commit together.
	res, ok := n.AddClientEntry(map[string]any{"k": "w"})
	if !ok {
		t.Fatalf("expected leader to accept entry")
	}
	n.matchIndex[1] = res.Index
	n.updateCommitIndexFromMatches()
	if n.CommitIndex() != res.Index {
		t.Fatalf("expected commit index to reach %d once a current-term entry has majority, got %d", res.Index, n.CommitIndex())
	}
}

func TestRequestVoteDeniedWhenCandidateLogIsStale(t *testing.T) {
	bounds := DefaultTickBounds()
	n := NewNode(0, 3, rand.New(rand.NewSource(1)), bounds)
	n.log = Log{{Term: 5, Item: map[string]any{"k": "v"}}}

	if err := n.ProcessEvent(Message{
		SenderID: 1, RecipientID: 0, Method: MethodRequestVote, CurrentTerm: 5,
		Args: RequestVoteArgs{LastLogIndex: 0, LastLogTerm: 0},
	}); err != nil {
		t.Fatalf("process event: %v", err)
	}
	out := n.DrainOutbox()
	if len(out) != 1 {
		t.Fatalf("expected exactly one response, got %d", len(out))
	}
	resp := out[0].Args.(RequestVoteResponseArgs)
	if resp.VoteGranted {
		t.Fatalf("expected vote denied for a candidate with a stale log")
	}
}

func TestStaleTermMessageIsRejectedWithoutMutatingState(t *testing.T) {
	bounds := DefaultTickBounds()
	n := NewNode(0, 3, rand.New(rand.NewSource(1)), bounds)
	n.currentTerm = 7

	if err := n.ProcessEvent(Message{
		SenderID: 1, RecipientID: 0, Method: MethodRequestVote, CurrentTerm: 3,
		Args: RequestVoteArgs{LastLogIndex: 0, LastLogTerm: 0},
	}); err != nil {
		t.Fatalf("process event: %v", err)
	}
	if n.currentTerm != 7 {
		t.Fatalf("term must not change on a stale message, got %d", n.currentTerm)
	}
	out := n.DrainOutbox()
	if len(out) != 1 || out[0].Method != MethodRejectMessage {
		t.Fatalf("expected a single reject_message reply, got %+v", out)
	}
}

func TestHigherTermMessageStepsDownBeforeAdoptingTerm(t *testing.T) {
	bounds := TickBounds{ElectionTimeoutLow: 1000, ElectionTimeoutHigh: 1000, HeartbeatInterval: 1}
	n := NewNode(0, 3, rand.New(rand.NewSource(1)), bounds)
	n.becomeCandidate() // term 2, role CANDIDATE, voted for self
	n.DrainOutbox()

	if err := n.ProcessEvent(Message{
		SenderID: 1, RecipientID: 0, Method: MethodRequestVote, CurrentTerm: 9,
		Args: RequestVoteArgs{LastLogIndex: 0, LastLogTerm: 0},
	}); err != nil {
		t.Fatalf("process event: %v", err)
	}
	if n.GetRole() != Follower {
		t.Fatalf("expected step-down to FOLLOWER, got %s", n.GetRole())
	}
	if n.currentTerm != 9 {
		t.Fatalf("expected term adopted from message, got %d", n.currentTerm)
	}
	out := n.DrainOutbox()
	resp := out[0].Args.(RequestVoteResponseArgs)
	if !resp.VoteGranted {
		t.Fatalf("expected vote granted: the stepped-down node cleared its own vote before handling the request")
	}
}

func TestUnknownMethodIsRejected(t *testing.T) {
	n := NewNode(0, 3, rand.New(rand.NewSource(1)), DefaultTickBounds())
	err := n.ProcessEvent(Message{SenderID: 1, RecipientID: 0, Method: "not_a_real_method", CurrentTerm: 1})
	if err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestNonLeaderRejectsClientEntry(t *testing.T) {
	n := NewNode(0, 3, rand.New(rand.NewSource(1)), DefaultTickBounds())
	_, ok := n.AddClientEntry(map[string]any{"op": "set"})
	if ok {
		t.Fatalf("expected follower to reject client entry")
	}
}

func TestElectionTimeoutWithSeededRNGIsDeterministic(t *testing.T) {
	bounds := TickBounds{ElectionTimeoutLow: 10, ElectionTimeoutHigh: 20, HeartbeatInterval: 3}
	a := NewNode(3, 5, rand.New(rand.NewSource(0)), bounds)
	b := NewNode(3, 5, rand.New(rand.NewSource(0)), bounds)
	if a.electionTimeout != b.electionTimeout {
		t.Fatalf("same seed must produce same election timeout: %d vs %d", a.electionTimeout, b.electionTimeout)
	}
}
