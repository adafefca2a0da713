// Package lang detects the conversation language and carries the per-language
// system prompts. Detection is a coarse script-ratio heuristic: enough Greek
// letters flips the session to Greek, anything else stays English.
package lang

import "unicode"

// Language codes used across the session.
const (
	English = "en"
	Greek   = "el"
)

// greekRatio is the fraction of letters that must be Greek script before an
// utterance counts as Greek.
const greekRatio = 0.3

// Detect returns the language code for the utterance. Utterances without
// letters keep English.
func Detect(utterance string) string {
	var letters, greek int
	for _, r := range utterance {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Greek, r) {
			greek++
		}
	}
	if letters == 0 {
		return English
	}
	if float64(greek)/float64(letters) > greekRatio {
		return Greek
	}
	return English
}

// SystemPrompt returns the assistant persona for the language. The prompts
// keep answers short because every word is spoken aloud.
func SystemPrompt(language string) string {
	if language == Greek {
		return "Είσαι η Daisy, μια φιλική φωνητική βοηθός. Απάντα στα Ελληνικά, " +
			"σύντομα και καθαρά, σε δύο με τρεις προτάσεις το πολύ, χωρίς " +
			"λίστες και χωρίς σύμβολα, γιατί οι απαντήσεις σου εκφωνούνται."
	}
	return "You are Daisy, a friendly voice assistant. Keep answers short and " +
		"clear, two or three sentences at most, with no lists or markup, " +
		"because everything you say is spoken aloud."
}

// Greeting returns the spoken session-start line.
func Greeting(language string) string {
	if language == Greek {
		return "Γεια σου! Σε ακούω."
	}
	return "Hello! I'm listening."
}

// Farewell returns the spoken session-end line.
func Farewell(language string) string {
	if language == Greek {
		return "Αντίο! Τα λέμε σύντομα."
	}
	return "Goodbye! Talk soon."
}

// Apology is the fixed response when every provider fails; the turn still
// completes with spoken output.
func Apology(language string) string {
	if language == Greek {
		return "Συγγνώμη, δεν μπορώ να απαντήσω αυτή τη στιγμή. Δοκίμασε ξανά σε λίγο."
	}
	return "Sorry, I can't reach my language services right now. Please try again in a bit."
}
