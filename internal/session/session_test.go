package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/daisyvoice/daisy/pkg/provider/llm"
)

func TestSignalRaiseOnce(t *testing.T) {
	sig := NewSignal()
	if sig.Raised() {
		t.Fatal("new signal should be lowered")
	}

	if !sig.Raise("keyboard") {
		t.Fatal("first Raise should win")
	}
	if sig.Raise("vad") {
		t.Fatal("second Raise should be a no-op")
	}
	if got := sig.Source(); got != "keyboard" {
		t.Errorf("Source = %q, want keyboard", got)
	}

	select {
	case <-sig.Done():
	default:
		t.Fatal("Done channel should be closed after Raise")
	}
}

func TestSignalConcurrentRaise(t *testing.T) {
	sig := NewSignal()
	var wg sync.WaitGroup
	wins := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if sig.Raise(fmt.Sprintf("detector-%d", n)) {
				wins <- fmt.Sprintf("detector-%d", n)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("got %d winning raises, want exactly 1", count)
	}
}

func TestSignalReset(t *testing.T) {
	sig := NewSignal()
	sig.Raise("vad")
	sig.Reset()

	if sig.Raised() {
		t.Fatal("signal should be lowered after Reset")
	}
	if sig.Source() != "" {
		t.Errorf("Source = %q after Reset, want empty", sig.Source())
	}
	select {
	case <-sig.Done():
		t.Fatal("Done channel should block after Reset")
	default:
	}

	if !sig.Raise("stopword") {
		t.Fatal("Raise should work again after Reset")
	}
}

func TestHistoryTrimKeepsSystemMessage(t *testing.T) {
	s := New("you are daisy", 5)
	for i := 0; i < 20; i++ {
		s.Append(llm.RoleUser, fmt.Sprintf("message %d", i))
	}

	history := s.History()
	if len(history) != 5 {
		t.Fatalf("len = %d, want 5", len(history))
	}
	if history[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q, want system", history[0].Role)
	}
	if got := history[len(history)-1].Content; got != "message 19" {
		t.Errorf("last message = %q, want %q", got, "message 19")
	}
}

func TestSetSystemPromptReplaces(t *testing.T) {
	s := New("english prompt", 0)
	s.Append(llm.RoleUser, "γεια σου")
	s.SetSystemPrompt("greek prompt")

	history := s.History()
	var systems int
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Fatalf("got %d system messages, want 1", systems)
	}
	if history[0].Content != "greek prompt" {
		t.Errorf("system prompt = %q, want replaced", history[0].Content)
	}
}

func TestRestoreKeepsCurrentSystemPrompt(t *testing.T) {
	s := New("current prompt", 0)
	s.Restore([]Message{
		{Role: llm.RoleSystem, Content: "stale prompt"},
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleAssistant, Content: "hi there"},
	})

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("len = %d, want 3", len(history))
	}
	if history[0].Role != llm.RoleSystem || history[0].Content != "current prompt" {
		t.Errorf("system message = %+v, want the current prompt", history[0])
	}
	if got := s.LastAssistant(); got != "hi there" {
		t.Errorf("LastAssistant = %q, want %q", got, "hi there")
	}
}

func TestRestoreTrimsToBound(t *testing.T) {
	s := New("sys", 4)
	var old []Message
	for i := 0; i < 10; i++ {
		old = append(old, Message{Role: llm.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}
	s.Restore(old)

	history := s.History()
	if len(history) != 4 {
		t.Fatalf("len = %d, want 4", len(history))
	}
	if history[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q, want system", history[0].Role)
	}
	if got := history[len(history)-1].Content; got != "message 9" {
		t.Errorf("last message = %q, want %q", got, "message 9")
	}
}

func TestLastAssistant(t *testing.T) {
	s := New("sys", 0)
	if got := s.LastAssistant(); got != "" {
		t.Errorf("LastAssistant on empty = %q, want empty", got)
	}
	s.Append(llm.RoleUser, "hello")
	s.Append(llm.RoleAssistant, "hi there")
	s.Append(llm.RoleUser, "thanks")
	if got := s.LastAssistant(); got != "hi there" {
		t.Errorf("LastAssistant = %q, want %q", got, "hi there")
	}
}

func TestCooldownStamps(t *testing.T) {
	s := New("sys", 0)
	if !s.LastInterrupt().IsZero() {
		t.Error("LastInterrupt should start zero")
	}
	if !s.LastResponseEnd().IsZero() {
		t.Error("LastResponseEnd should start zero")
	}
	s.MarkInterrupted()
	s.MarkResponseEnd()
	if s.LastInterrupt().IsZero() || s.LastResponseEnd().IsZero() {
		t.Error("stamps should be set after marking")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "conversation.json")
	st := NewStore(path)

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if loaded != nil {
		t.Fatalf("Load missing file = %v, want nil", loaded)
	}

	s := New("sys", 0)
	s.Append(llm.RoleUser, "hello")
	s.Append(llm.RoleAssistant, "hi")
	if err := st.Save(s.Messages()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err = st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d messages, want 3", len(loaded))
	}
	if loaded[1].Role != llm.RoleUser || loaded[1].Content != "hello" {
		t.Errorf("loaded[1] = %+v, want user hello", loaded[1])
	}
}
