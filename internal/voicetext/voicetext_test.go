package voicetext

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text unchanged",
			in:   "Hello there, how are you?",
			want: "Hello there, how are you?",
		},
		{
			name: "bold and italic unwrapped",
			in:   "That is **very** *important* indeed.",
			want: "That is very important indeed.",
		},
		{
			name: "inline code dropped",
			in:   "Run `go build` to compile.",
			want: "Run to compile.",
		},
		{
			name: "code block dropped",
			in:   "Like this:\n```go\nfmt.Println(1)\n```\nDone.",
			want: "Like this: Done.",
		},
		{
			name: "link keeps label",
			in:   "See [the docs](https://example.com) for more.",
			want: "See the docs for more.",
		},
		{
			name: "bullets and headings stripped",
			in:   "## Plan\n- first step\n- second step\n1. numbered too",
			want: "Plan first step second step numbered too",
		},
		{
			name: "emoji removed",
			in:   "Great job! 🎉👍 Keep going.",
			want: "Great job! Keep going.",
		},
		{
			name: "greek preserved",
			in:   "Καλημέρα! **Τι κάνεις;**",
			want: "Καλημέρα! Τι κάνεις;",
		},
		{
			name: "whitespace collapsed",
			in:   "too   many\n\n\nspaces",
			want: "too many spaces",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
