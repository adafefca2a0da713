// Package voicetext cleans model output before synthesis: markup, emoji,
// and code have no spoken form and make every TTS engine stumble.
package voicetext

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	inlineCode  = regexp.MustCompile("`[^`]*`")
	boldRe      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe    = regexp.MustCompile(`\*([^*]+)\*`)
	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe    = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	numberedRe  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Clean returns the speakable form of model output.
func Clean(text string) string {
	text = codeBlockRe.ReplaceAllString(text, " ")
	text = inlineCode.ReplaceAllString(text, " ")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = numberedRe.ReplaceAllString(text, "")
	text = stripUnspeakable(text)
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// stripUnspeakable removes emoji and other symbol runes while keeping
// letters in any script plus ordinary punctuation.
func stripUnspeakable(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		case strings.ContainsRune(".,!?;:'’%()-–€$", r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
