package session

import "sync"

// Signal is the shared cancellation primitive raised by interrupt detectors
// and observed by the playback coordinator.
//
// It is edge-triggered within a turn: the first Raise wins, later raises are
// no-ops, and the signal stays raised until the turn orchestrator calls
// Reset. Detectors never reset it.
type Signal struct {
	mu     sync.Mutex
	raised bool
	source string
	ch     chan struct{}
}

// NewSignal returns a lowered Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Raise marks the signal raised, recording which detector fired first.
// Returns true if this call performed the raise, false if it was already up.
func (s *Signal) Raise(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raised {
		return false
	}
	s.raised = true
	s.source = source
	close(s.ch)
	return true
}

// Raised reports whether the signal is up.
func (s *Signal) Raised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raised
}

// Source returns the detector name recorded by the winning Raise, or "" if
// the signal is down.
func (s *Signal) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Done returns a channel closed when the signal is raised. After Reset the
// previous channel is abandoned; callers must re-fetch it each turn.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Reset lowers the signal for the next turn. Only the turn orchestrator
// calls this.
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.raised {
		return
	}
	s.raised = false
	s.source = ""
	s.ch = make(chan struct{})
}
