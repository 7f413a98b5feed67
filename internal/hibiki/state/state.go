// Package state holds the runtime toggles shared by the security policy, the
// scheduler and the orchestrator.
package state

import (
	"sync"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
)

// Pending is a command waiting for confirmation.
type Pending struct {
	Command     intent.ParsedCommand
	Actor       string
	RequestedAt time.Time
}

// AgentState is safe for concurrent use. The zero value is not ready; use New.
type AgentState struct {
	mu         sync.Mutex
	emergency  bool
	scheduling bool
	pending    *Pending
}

// New returns a state with scheduling enabled and no lockdown.
func New() *AgentState {
	return &AgentState{scheduling: true}
}

// Emergency reports whether lockdown is engaged.
func (s *AgentState) Emergency() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergency
}

// SetEmergency engages or releases lockdown.
func (s *AgentState) SetEmergency(on bool) {
	s.mu.Lock()
	s.emergency = on
	s.mu.Unlock()
}

// SchedulingEnabled reports whether the scheduler may trigger tasks.
func (s *AgentState) SchedulingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduling
}

// SetSchedulingEnabled pauses or resumes scheduled triggers.
func (s *AgentState) SetSchedulingEnabled(on bool) {
	s.mu.Lock()
	s.scheduling = on
	s.mu.Unlock()
}

// StorePending fills the single pending slot. A command already waiting is
// overwritten; replaced reports whether that happened.
func (s *AgentState) StorePending(p Pending) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced = s.pending != nil
	cp := p
	cp.Command.Params = p.Command.Params.Clone()
	s.pending = &cp
	return replaced
}

// TakePending empties the slot and returns what it held.
func (s *AgentState) TakePending() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, false
	}
	p := *s.pending
	s.pending = nil
	return p, true
}

// PeekPending returns the waiting command without consuming it.
func (s *AgentState) PeekPending() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Pending{}, false
	}
	p := *s.pending
	p.Command.Params = s.pending.Command.Params.Clone()
	return p, true
}

// ClearPending drops the waiting command, reporting whether there was one.
func (s *AgentState) ClearPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pending != nil
	s.pending = nil
	return had
}
