package lang

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello there", English},
		{"γεια σου, τι κάνεις;", Greek},
		{"ok γεια σου φίλε μου", Greek},
		{"mostly english with one ωμέγα", English},
		{"", English},
		{"12345 !!!", English},
	}
	for _, tt := range tests {
		if got := Detect(tt.in); got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPromptsDiffer(t *testing.T) {
	if SystemPrompt(English) == SystemPrompt(Greek) {
		t.Error("prompts for English and Greek should differ")
	}
	if Greeting(English) == Greeting(Greek) {
		t.Error("greetings for English and Greek should differ")
	}
	if Apology(English) == "" || Apology(Greek) == "" {
		t.Error("apology must never be empty")
	}
}
