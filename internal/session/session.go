// Package session holds the mutable per-conversation state: message history,
// the speaking flag, the shared cancellation [Signal], and the cooldown
// timestamps read by the debounce filter.
//
// A Session is shared between the turn orchestrator and the interrupt
// detectors. Detectors treat it as read-mostly: they read Speaking to know
// whether to keep running and write only through Signal.Raise.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/daisyvoice/daisy/pkg/provider/llm"
)

// DefaultMaxHistory bounds the conversation history. The system message
// survives trimming.
const DefaultMaxHistory = 50

// Message is one conversation entry.
type Message struct {
	Role    llm.Role  `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Session is the authoritative conversation state. Safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	history    []Message
	maxHistory int
	language   string

	speaking atomic.Bool
	signal   *Signal

	lastInterrupt   atomic.Int64 // unix nanos, 0 = never
	lastResponseEnd atomic.Int64
}

// New returns a Session with the given system prompt installed. maxHistory
// of 0 selects [DefaultMaxHistory].
func New(systemPrompt string, maxHistory int) *Session {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &Session{
		maxHistory: maxHistory,
		signal:     NewSignal(),
		language:   "en",
	}
	if systemPrompt != "" {
		s.history = append(s.history, Message{
			Role:    llm.RoleSystem,
			Content: systemPrompt,
			Time:    time.Now(),
		})
	}
	return s
}

// Signal returns the shared cancellation signal for the current turn.
func (s *Session) Signal() *Signal { return s.signal }

// SetSpeaking flips the is-speaking flag. Owned by the playback coordinator.
func (s *Session) SetSpeaking(v bool) { s.speaking.Store(v) }

// Speaking reports whether a response is currently being spoken.
func (s *Session) Speaking() bool { return s.speaking.Load() }

// Append adds a message to the history and trims to the configured bound.
func (s *Session) Append(role llm.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Message{Role: role, Content: content, Time: time.Now()})
	s.trimLocked()
}

// trimLocked drops the oldest non-system messages once the bound is
// exceeded. The system message, if present, is always index 0 and always
// retained.
func (s *Session) trimLocked() {
	if len(s.history) <= s.maxHistory {
		return
	}
	excess := len(s.history) - s.maxHistory
	if len(s.history) > 0 && s.history[0].Role == llm.RoleSystem {
		rest := s.history[1:]
		s.history = append(s.history[:1], rest[excess:]...)
		return
	}
	s.history = s.history[excess:]
}

// Restore replaces the non-system history with messages from a previous
// session and trims to the configured bound. Any persisted system prompt is
// dropped in favor of the one already installed, which reflects the current
// configuration.
func (s *Session) Restore(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keep []Message
	if len(s.history) > 0 && s.history[0].Role == llm.RoleSystem {
		keep = s.history[:1]
	}
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			continue
		}
		keep = append(keep, m)
	}
	s.history = keep
	s.trimLocked()
}

// SetSystemPrompt replaces the authoritative system message wholesale, used
// on language switches. At most one system message exists at a time.
func (s *Session) SetSystemPrompt(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := Message{Role: llm.RoleSystem, Content: content, Time: time.Now()}
	if len(s.history) > 0 && s.history[0].Role == llm.RoleSystem {
		s.history[0] = msg
		return
	}
	s.history = append([]Message{msg}, s.history...)
}

// History returns a copy of the conversation in llm message form, ready to
// hand to the provider cascade.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	for i, m := range s.history {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// Messages returns a copy of the full history including timestamps, for
// persistence.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Len reports the current history length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// LastAssistant returns the most recent assistant message content, or "".
func (s *Session) LastAssistant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == llm.RoleAssistant {
			return s.history[i].Content
		}
	}
	return ""
}

// SetLanguage records the active conversation language ("en" or "el").
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// Language returns the active conversation language.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// MarkInterrupted records the moment a cancellation completed.
func (s *Session) MarkInterrupted() { s.lastInterrupt.Store(time.Now().UnixNano()) }

// LastInterrupt returns when the last cancellation completed, or the zero
// time if none has occurred.
func (s *Session) LastInterrupt() time.Time { return stampTime(s.lastInterrupt.Load()) }

// MarkResponseEnd records the moment a response finished playing.
func (s *Session) MarkResponseEnd() { s.lastResponseEnd.Store(time.Now().UnixNano()) }

// LastResponseEnd returns when the last response finished, or the zero time.
func (s *Session) LastResponseEnd() time.Time { return stampTime(s.lastResponseEnd.Load()) }

func stampTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
