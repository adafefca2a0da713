// Package mock provides a scriptable [stt.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/daisyvoice/daisy/pkg/provider/stt"
)

// Provider is a test double for stt.Provider. Transcripts are returned in
// order; when they run out, ErrNoSpeech is returned.
type Provider struct {
	ProviderName string

	// Transcripts is the scripted sequence of results. A nil entry error
	// with empty text yields ErrNoSpeech.
	Transcripts []Result

	// TranscribeFunc, when set, overrides the scripted sequence.
	TranscribeFunc func(ctx context.Context, clip stt.Clip) (string, error)

	mu    sync.Mutex
	calls int
}

// Result is one scripted Transcribe outcome.
type Result struct {
	Text string
	Err  error
}

var _ stt.Provider = (*Provider)(nil)

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *Provider) Transcribe(ctx context.Context, clip stt.Clip) (string, error) {
	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(ctx, clip)
	}

	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if idx >= len(p.Transcripts) {
		return "", stt.ErrNoSpeech
	}
	r := p.Transcripts[idx]
	if r.Err != nil {
		return "", r.Err
	}
	if r.Text == "" {
		return "", stt.ErrNoSpeech
	}
	return r.Text, nil
}

// Calls reports how many times Transcribe was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
