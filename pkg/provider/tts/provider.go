// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis engine (a local Piper instance, the
// OpenAI speech API, or the macOS say command) and renders a reply into an
// audio artifact on disk. Producing a file rather than a PCM stream is
// deliberate: playback runs in a separate process so the interrupt ensemble
// can kill it mid-utterance without tearing down the engine.
package tts

import "context"

// Format identifies the container of a synthesized artifact.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatAIFF Format = "aiff"
)

// Artifact is a synthesized utterance written to disk. The caller owns the
// file and removes it after playback finishes.
type Artifact struct {
	Path   string
	Format Format
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier used in logs and metrics.
	Name() string

	// Synthesize renders text into an audio file and returns its location.
	// The file is created under the OS temp directory; callers are expected
	// to remove it once played.
	Synthesize(ctx context.Context, text string) (Artifact, error)
}
