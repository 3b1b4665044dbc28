// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PokeU Contributors

package verify

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

// State is the position of a Session in the handshake.
type State int

// Session states.
const (
	StateIdle State = iota
	StateCodeIssued
	StateConsumed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCodeIssued:
		return "code_issued"
	case StateConsumed:
		return "consumed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// pending is a registration waiting for its code. The password lives only
// here and is cleared as soon as the registration leaves the session.
type pending struct {
	email       string
	password    string
	displayName string
	code        string
	issuedAt    time.Time
	attempts    int
}

func (p *pending) wipe() {
	p.password = ""
	p.code = ""
}

// Session carries one client's handshake. It is safe for concurrent use.
type Session struct {
	ID ulid.ULID

	mu      sync.Mutex
	state   State
	pending *pending
	resend  *rate.Limiter
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{ID: ulid.Make()}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingEmail returns the address a code was sent to, if any.
func (s *Session) PendingEmail() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", false
	}
	return s.pending.email, true
}

// discard drops the pending registration. Callers hold mu.
func (s *Session) discard(next State) {
	if s.pending != nil {
		s.pending.wipe()
		s.pending = nil
	}
	s.state = next
}
