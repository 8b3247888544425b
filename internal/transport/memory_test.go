package transport

import (
	"math/rand"
	"testing"

	"raftkv/internal/raft"
)

func TestMemoryNetworkDeliversInFIFOOrder(t *testing.T) {
	net := NewMemoryNetwork(3, rand.New(rand.NewSource(1)))
	net.Send(raft.Message{SenderID: 0, RecipientID: 1, Method: raft.MethodRequestVote, CurrentTerm: 1})
	net.Send(raft.Message{SenderID: 2, RecipientID: 1, Method: raft.MethodRequestVote, CurrentTerm: 1})

	first, ok := net.Receive(1)
	if !ok || first.SenderID != 0 {
		t.Fatalf("expected first message from sender 0, got %+v ok=%v", first, ok)
	}
	second, ok := net.Receive(1)
	if !ok || second.SenderID != 2 {
		t.Fatalf("expected second message from sender 2, got %+v ok=%v", second, ok)
	}
	if _, ok := net.Receive(1); ok {
		t.Fatalf("expected no more messages")
	}
}

func TestMemoryNetworkDisabledNodeReceivesNothing(t *testing.T) {
	net := NewMemoryNetwork(2, rand.New(rand.NewSource(1)))
	net.Send(raft.Message{SenderID: 0, RecipientID: 1, Method: raft.MethodRequestVote, CurrentTerm: 1})
	net.Disable(1)

	if _, ok := net.Receive(1); ok {
		t.Fatalf("expected disabled node to receive nothing")
	}
	net.Enable(1)
	if _, ok := net.Receive(1); !ok {
		t.Fatalf("expected re-enabled node to receive its queued message")
	}
}

func TestMemoryNetworkFullFailureRateDropsEverything(t *testing.T) {
	net := NewMemoryNetwork(2, rand.New(rand.NewSource(1)))
	net.MessageFailureRate = 1.0
	for i := 0; i < 20; i++ {
		net.Send(raft.Message{SenderID: 0, RecipientID: 1, Method: raft.MethodRequestVote, CurrentTerm: 1})
	}
	if net.Pending(1) != 0 {
		t.Fatalf("expected all sends dropped at failure rate 1.0, got %d pending", net.Pending(1))
	}
}

func TestMemoryNetworkZeroFailureRateDeliversEverything(t *testing.T) {
	net := NewMemoryNetwork(2, rand.New(rand.NewSource(1)))
	for i := 0; i < 20; i++ {
		net.Send(raft.Message{SenderID: 0, RecipientID: 1, Method: raft.MethodRequestVote, CurrentTerm: 1})
	}
	if net.Pending(1) != 20 {
		t.Fatalf("expected all 20 sends delivered at failure rate 0, got %d pending", net.Pending(1))
	}
}

func TestMemoryNetworkReceiveAllDrainsQueue(t *testing.T) {
	net := NewMemoryNetwork(2, rand.New(rand.NewSource(1)))
	for i := 0; i < 5; i++ {
		net.Send(raft.Message{SenderID: 0, RecipientID: 1, Method: raft.MethodRequestVote, CurrentTerm: uint64(i)})
	}
	all := net.ReceiveAll(1)
	if len(all) != 5 {
		t.Fatalf("expected 5 messages drained, got %d", len(all))
	}
	if net.Pending(1) != 0 {
		t.Fatalf("expected queue empty after ReceiveAll")
	}
}
