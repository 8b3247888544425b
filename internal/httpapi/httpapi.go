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

// Package httpapi exposes a raftkv node's key/value store and cluster
// status over HTTP. Writes are proposed through the Raft harness and
// succeed once the leader has appended them to its own log, which may
// be before they are committed; reads are served from the local
// applied state, which may briefly lag the committed log on a
// follower.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"raftkv/internal/applier"
	raftkverrors "raftkv/internal/errors"
	"raftkv/internal/health"
	"raftkv/internal/logging"
	"raftkv/internal/metrics"
	"raftkv/internal/raft"
)

var log = logging.NewLogger("httpapi")

// Server wires the key/value store, the current node, metrics, and
// the peer health monitor behind a single HTTP mux.
type Server struct {
	node       *raft.Node
	store      *applier.KVStore
	client     *applier.Client
	metrics    *metrics.Registry
	health     *health.Monitor
	authSecret string
	mux        *http.ServeMux
}

// New builds a Server. authSecret, when non-empty, is the HMAC key
// every request's bearer JWT must be signed with; health and metrics
// may be nil when not wired.
func New(node *raft.Node, store *applier.KVStore, client *applier.Client, reg *metrics.Registry, mon *health.Monitor, authSecret string) *Server {
	s := &Server{
		node:       node,
		store:      store,
		client:     client,
		metrics:    reg,
		health:     mon,
		authSecret: authSecret,
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/kv/", s.handleKV)
	s.mux.HandleFunc("/kv", s.handleListKV)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/health", s.handleHealth)
	if reg != nil {
		s.mux.Handle("/metrics", reg.Handler())
	}
	return s
}

// IssueToken signs a bearer token callers can present to this node's
// API. subject identifies the caller (a client name, another node's
// ID, whatever the operator wants to see in an audit trail); ttl
// bounds how long the token is valid.
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(s.authSecret))
}

// ServeHTTP implements http.Handler: it stamps every request with a
// request ID, enforces bearer-token auth, then dispatches to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", reqID)

	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authSecret == "" {
		return true
	}
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return false
	}
	raw := strings.TrimPrefix(h, prefix)

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, raftkverrors.MalformedMessage("unexpected signing method")
		}
		return []byte(s.authSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	return true
}

func (s *Server) handleKV(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		v, ok := s.store.Get(key)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": v})

	case http.MethodPut:
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if _, err := s.client.Set(key, body.Value); err != nil {
			writeProposeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if _, err := s.client.Delete(key); err != nil {
			writeProposeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleListKV dumps every key this node's state machine currently
// holds, in collated order. Used by raftkv-dump for full snapshots.
func (s *Server) handleListKV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":           s.node.ID,
		"role":              s.node.GetRole().String(),
		"term":              s.node.GetTerm(),
		"commit_index":      s.node.CommitIndex(),
		"application_index": s.node.ApplicationIndex(),
		"log_length":        s.node.LogLen(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.health.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err.Error())
	}
}

func writeProposeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if raftkverrors.IsNotLeader(err) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
