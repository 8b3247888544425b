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

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestRaftErrorBasic(t *testing.T) {
	err := StaleTerm(5, 3)

	if err.Code != ErrCodeStaleTerm {
		t.Errorf("expected code %d, got %d", ErrCodeStaleTerm, err.Code)
	}
	if err.Category != CategoryStaleTerm {
		t.Errorf("expected category %s, got %s", CategoryStaleTerm, err.Category)
	}
	if !strings.Contains(err.Error(), "stale term") {
		t.Errorf("expected error message to mention stale term, got: %s", err.Error())
	}
}

func TestRaftErrorWithDetail(t *testing.T) {
	err := NewValidationLikeDetail()
	if !strings.Contains(err.Error(), "prev_index") {
		t.Errorf("expected error to contain detail, got: %s", err.Error())
	}
}

func NewValidationLikeDetail() *RaftError {
	return LogInconsistent(4, 2)
}

func TestRaftErrorWithHint(t *testing.T) {
	err := NotLeader("node-2:7000")
	userMsg := err.UserMessage()
	if !strings.Contains(userMsg, "HINT:") {
		t.Errorf("expected user message to contain HINT, got: %s", userMsg)
	}
	if !strings.Contains(userMsg, "node-2:7000") {
		t.Errorf("expected hint to reference the leader address, got: %s", userMsg)
	}
}

func TestNotLeaderWithoutHintFallsBackToGeneric(t *testing.T) {
	err := NotLeader("")
	if !strings.Contains(err.Hint, "another node") {
		t.Errorf("expected generic retry hint, got: %s", err.Hint)
	}
}

func TestRaftErrorWithCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NetworkDown("node-3:7000", cause)

	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestUnknownMethodConstructor(t *testing.T) {
	err := UnknownMethod("frobnicate")
	if err.Category != CategoryUnknownMethod {
		t.Errorf("expected category %s, got %s", CategoryUnknownMethod, err.Category)
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("expected error to name the offending method, got: %s", err.Error())
	}
}

func TestMalformedMessageConstructor(t *testing.T) {
	err := MalformedMessage("unexpected end of JSON input")
	if err.Code != ErrCodeMalformedMessage {
		t.Errorf("expected code %d, got %d", ErrCodeMalformedMessage, err.Code)
	}
}

func TestIsNotLeader(t *testing.T) {
	if !IsNotLeader(NotLeader("")) {
		t.Error("expected IsNotLeader to recognize a NotLeader error")
	}
	if IsNotLeader(StaleTerm(1, 0)) {
		t.Error("expected IsNotLeader to reject a StaleTerm error")
	}
	if IsNotLeader(errors.New("plain error")) {
		t.Error("expected IsNotLeader to reject a non-RaftError")
	}
}

func TestIsNetworkDown(t *testing.T) {
	if !IsNetworkDown(NetworkDown("x", nil)) {
		t.Error("expected IsNetworkDown to recognize a NetworkDown error")
	}
	if IsNetworkDown(NotLeader("")) {
		t.Error("expected IsNetworkDown to reject a NotLeader error")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(StaleTerm(1, 0)) != ErrCodeStaleTerm {
		t.Error("expected GetCode to return the RaftError's code")
	}
	if GetCode(errors.New("plain")) != 0 {
		t.Error("expected GetCode to return 0 for a non-RaftError")
	}
}

func TestFormatError(t *testing.T) {
	if !strings.Contains(FormatError(NotLeader("leader:9000")), "HINT:") {
		t.Error("expected FormatError to use UserMessage for a RaftError")
	}
	if !strings.HasPrefix(FormatError(errors.New("boom")), "ERROR:") {
		t.Error("expected FormatError to wrap a plain error")
	}
}
