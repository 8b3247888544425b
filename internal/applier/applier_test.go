package applier

import (
	"testing"

	"raftkv/internal/raft"
)

func TestApplySetAndGet(t *testing.T) {
	s := NewKVStore("")
	s.Apply(raft.CommitBatch{FirstIndex: 1, Entries: []raft.LogEntry{{Term: 1, Item: SetItem("a", "1")}}})

	v, ok := s.Get("a")
	if !ok || v != "1" {
		t.Fatalf("expected a=1, got %q ok=%v", v, ok)
	}
	if s.LastApplied() != 1 {
		t.Fatalf("expected lastApplied 1, got %d", s.LastApplied())
	}
}

func TestApplyDeleteRemovesKey(t *testing.T) {
	s := NewKVStore("")
	s.Apply(raft.CommitBatch{FirstIndex: 1, Entries: []raft.LogEntry{
		{Term: 1, Item: SetItem("a", "1")},
		{Term: 1, Item: DeleteItem("a")},
	}})

	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected key 'a' to be deleted")
	}
	if s.LastApplied() != 2 {
		t.Fatalf("expected lastApplied 2, got %d", s.LastApplied())
	}
}

func TestApplyOutOfOrderBatchPanics(t *testing.T) {
	s := NewKVStore("")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-order batch")
		}
	}()
	s.Apply(raft.CommitBatch{FirstIndex: 5, Entries: []raft.LogEntry{{Term: 1, Item: SetItem("a", "1")}}})
}

func TestListReturnsSortedKeys(t *testing.T) {
	s := NewKVStore("")
	s.Apply(raft.CommitBatch{FirstIndex: 1, Entries: []raft.LogEntry{
		{Term: 1, Item: SetItem("banana", "2")},
		{Term: 1, Item: SetItem("apple", "1")},
		{Term: 1, Item: SetItem("cherry", "3")},
	}})

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	if list[0].Key != "apple" || list[1].Key != "banana" || list[2].Key != "cherry" {
		t.Fatalf("expected sorted order apple,banana,cherry, got %+v", list)
	}
}

func TestOnApplyCallbackFires(t *testing.T) {
	s := NewKVStore("")
	var seen []uint64
	s.OnApply(func(index uint64, item map[string]any) {
		seen = append(seen, index)
	})
	s.Apply(raft.CommitBatch{FirstIndex: 1, Entries: []raft.LogEntry{
		{Term: 1, Item: SetItem("a", "1")},
		{Term: 1, Item: SetItem("b", "2")},
	}})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("expected callback fired at indices [1 2], got %v", seen)
	}
}

type fakeProposer struct {
	isLeader bool
	index    uint64
}

func (f *fakeProposer) Propose(item map[string]any) (raft.AddEntryResult, bool) {
	if !f.isLeader {
		return raft.AddEntryResult{}, false
	}
	f.index++
	return raft.AddEntryResult{Term: 1, Index: f.index}, true
}

func TestClientSetReturnsNotLeaderWhenRejected(t *testing.T) {
	c := NewClient(&fakeProposer{isLeader: false})
	if _, err := c.Set("a", "1"); err == nil {
		t.Fatalf("expected NotLeader error")
	}
}

func TestClientSetSucceedsOnLeader(t *testing.T) {
	c := NewClient(&fakeProposer{isLeader: true})
	res, err := c.Set("a", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Index != 1 {
		t.Fatalf("expected index 1, got %d", res.Index)
	}
}
