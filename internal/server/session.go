package server

import (
	"sync"

	"github.com/sqleval/sqleval/pkg/types"
)

// State is the lifecycle state of a session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session tracks the client and the cases it has submitted.
type Session struct {
	mu         sync.Mutex
	state      State
	clientName string
	cases      []*types.CaseResult
}

// NewSession returns an uninitialized session.
func NewSession() *Session {
	return &Session{}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Initialize moves an uninitialized session to ready. It reports false when
// the session was already initialized.
func (s *Session) Initialize(clientName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return false
	}
	s.state = StateReady
	s.clientName = clientName
	return true
}

func (s *Session) ClientName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientName
}

// AddCase records an evaluated case.
func (s *Session) AddCase(c *types.CaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, c)
}

// Cases returns the evaluated cases in submission order.
func (s *Session) Cases() []*types.CaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.CaseResult(nil), s.cases...)
}
