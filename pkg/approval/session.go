package approval

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Session holds the approve-always decisions made during one conversational
// session. It lives exactly as long as the scheduler that owns it and is
// never written to disk.
type Session struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewSession creates an empty session allowlist.
func NewSession() *Session {
	return &Session{allowed: make(map[string]struct{})}
}

// Allow records an approve-always decision for a tool.
func (s *Session) Allow(tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.allowed[tool]; exists {
		return
	}
	s.allowed[tool] = struct{}{}
	log.Info().Str("tool", tool).Msg("Tool allowlisted for session")
}

// Allowed reports whether a tool was approve-always'd earlier this session.
func (s *Session) Allowed(tool string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allowed[tool]
	return ok
}

// List returns the allowlisted tool names, sorted.
func (s *Session) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.allowed))
	for tool := range s.allowed {
		out = append(out, tool)
	}
	sort.Strings(out)
	return out
}

// Clear drops every standing decision.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed = make(map[string]struct{})
}

// Count returns the number of allowlisted tools.
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.allowed)
}
