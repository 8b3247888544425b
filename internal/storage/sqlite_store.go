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

/*
Package storage provides optional durability for a raft.Node: a
SQLiteStore that persists the log, current term, and vote so a
restarted node can resume instead of rejoining with empty state.

Durability is a composition layer, not a change to core Raft
semantics: a Node never touches disk itself. cmd/raftkv-server calls
LoadState on startup and SaveState every 500ms and once at shutdown;
it does not save after each processed event, so changes made since
the last save are not on disk if the process dies.
*/
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"raftkv/internal/raft"
)

const schema = `
CREATE TABLE IF NOT EXISTS raft_state (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	current_term INTEGER NOT NULL,
	voted_for INTEGER,
	log_json TEXT NOT NULL
);
`

// PersistedState is everything a restarted node needs to resume
// without violating Election Safety or Log Matching: it must never
// forget a vote it already cast or an entry it already accepted.
type PersistedState struct {
	CurrentTerm uint64
	VotedFor    *int
	Log         raft.Log
}

// SQLiteStore persists PersistedState to a single-row SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveState overwrites the single persisted row with state.
func (s *SQLiteStore) SaveState(state PersistedState) error {
	logJSON, err := json.Marshal(state.Log)
	if err != nil {
		return fmt.Errorf("storage: marshal log: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO raft_state (id, current_term, voted_for, log_json) VALUES (0, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET current_term = excluded.current_term,
		   voted_for = excluded.voted_for, log_json = excluded.log_json`,
		state.CurrentTerm, nullableInt(state.VotedFor), string(logJSON),
	)
	if err != nil {
		return fmt.Errorf("storage: save state: %w", err)
	}
	return nil
}

// LoadState reads the persisted row. ok is false for a freshly created
// database with no prior state.
func (s *SQLiteStore) LoadState() (PersistedState, bool, error) {
	var term uint64
	var votedFor sql.NullInt64
	var logJSON string

	row := s.db.QueryRow(`SELECT current_term, voted_for, log_json FROM raft_state WHERE id = 0`)
	if err := row.Scan(&term, &votedFor, &logJSON); err != nil {
		if err == sql.ErrNoRows {
			return PersistedState{}, false, nil
		}
		return PersistedState{}, false, fmt.Errorf("storage: load state: %w", err)
	}

	var log raft.Log
	if err := json.Unmarshal([]byte(logJSON), &log); err != nil {
		return PersistedState{}, false, fmt.Errorf("storage: unmarshal log: %w", err)
	}

	state := PersistedState{CurrentTerm: term, Log: log}
	if votedFor.Valid {
		v := int(votedFor.Int64)
		state.VotedFor = &v
	}
	return state, true, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
