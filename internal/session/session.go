// Package session holds the proxy's singleton session state: the captured
// initialize handshake and the set of tools/list request ids awaiting
// extension-tool injection.
package session

import (
	"encoding/json"
	"sync"
)

// State is guarded by a single mutex; every field is cross-goroutine shared
// between Pump A, Pump B, and the Restart Controller.
type State struct {
	mu sync.Mutex

	capturedInitializeParams json.RawMessage
	pendingToolsListInjection map[string]struct{}
}

// New returns an empty Session State.
func New() *State {
	return &State{pendingToolsListInjection: make(map[string]struct{})}
}

// CaptureInitialize records params the first time an "initialize" request
// is observed from the client. Subsequent calls are no-ops: set at most
// once per proxy lifetime.
func (s *State) CaptureInitialize(params json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturedInitializeParams == nil {
		// Copy to avoid aliasing the caller's buffer.
		cp := make(json.RawMessage, len(params))
		copy(cp, params)
		s.capturedInitializeParams = cp
	}
}

// InitializeParams returns the captured params, or nil if none have been
// captured yet.
func (s *State) InitializeParams() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturedInitializeParams
}

// MarkToolsListPending records id as awaiting extension-tool injection when
// its response arrives.
func (s *State) MarkToolsListPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingToolsListInjection[id] = struct{}{}
}

// TakeToolsListPending reports whether id was pending injection and, if so,
// removes it, the instant its response is observed.
func (s *State) TakeToolsListPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pendingToolsListInjection[id]; !ok {
		return false
	}
	delete(s.pendingToolsListInjection, id)
	return true
}
