// Package stt defines the speech-to-text provider contract.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when the clip contains no transcribable speech.
// Callers treat it as a silent turn rather than a provider failure.
var ErrNoSpeech = errors.New("stt: no speech detected")

// Clip is a single captured utterance handed to a provider for
// transcription.
type Clip struct {
	// PCM holds raw little-endian 16-bit mono samples.
	PCM []int16
	// SampleRate is the capture rate in Hz, typically 16000.
	SampleRate int
}

// Provider transcribes recorded speech to text.
type Provider interface {
	// Name returns the provider identifier used in logs and metrics.
	Name() string

	// Transcribe converts the clip to text. Implementations return
	// [ErrNoSpeech] when the backend produces an empty transcript.
	Transcribe(ctx context.Context, clip Clip) (string, error)
}
