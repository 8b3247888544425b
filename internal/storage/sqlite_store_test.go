package storage

import (
	"math/rand"
	"path/filepath"
	"testing"

	"raftkv/internal/raft"
)

func TestSQLiteStoreLoadStateOnFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	_, ok, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on a fresh database")
	}
}

func TestSQLiteStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	voted := 2
	want := PersistedState{
		CurrentTerm: 7,
		VotedFor:    &voted,
		Log: raft.Log{
			{Term: 1, Item: map[string]any{"op": "set", "key": "a", "value": "1"}},
			{Term: 3, Item: map[string]any{"op": "delete", "key": "a"}},
		},
	}
	if err := s.SaveState(want); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	got, ok, err := s.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true after SaveState")
	}
	if got.CurrentTerm != want.CurrentTerm {
		t.Fatalf("expected term %d, got %d", want.CurrentTerm, got.CurrentTerm)
	}
	if got.VotedFor == nil || *got.VotedFor != voted {
		t.Fatalf("expected voted_for %d, got %v", voted, got.VotedFor)
	}
	if len(got.Log) != len(want.Log) {
		t.Fatalf("expected log length %d, got %d", len(want.Log), len(got.Log))
	}
}

func TestSQLiteStoreSaveStateOverwritesPriorRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	if err := s.SaveState(PersistedState{CurrentTerm: 1}); err != nil {
		t.Fatalf("first SaveState: %v", err)
	}
	if err := s.SaveState(PersistedState{CurrentTerm: 2}); err != nil {
		t.Fatalf("second SaveState: %v", err)
	}

	got, ok, err := s.LoadState()
	if err != nil || !ok {
		t.Fatalf("LoadState: ok=%v err=%v", ok, err)
	}
	if got.CurrentTerm != 2 {
		t.Fatalf("expected latest term 2, got %d", got.CurrentTerm)
	}
}

func TestPersistedStateRoundTripIntoNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	voted := 1
	if err := s.SaveState(PersistedState{
		CurrentTerm: 4,
		VotedFor:    &voted,
		Log:         raft.Log{{Term: 4, Item: map[string]any{"op": "set", "key": "x", "value": "y"}}},
	}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	state, ok, err := s.LoadState()
	if err != nil || !ok {
		t.Fatalf("LoadState: ok=%v err=%v", ok, err)
	}

	n := raft.NewNode(0, 3, rand.New(rand.NewSource(1)), raft.DefaultTickBounds())
	n.RestoreState(state.CurrentTerm, state.VotedFor, state.Log)

	if n.GetTerm() != 4 {
		t.Fatalf("expected restored term 4, got %d", n.GetTerm())
	}
	if n.LogLen() != 1 {
		t.Fatalf("expected restored log length 1, got %d", n.LogLen())
	}
}
