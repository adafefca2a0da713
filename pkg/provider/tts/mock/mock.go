// Package mock provides a scriptable [tts.Provider] for tests.
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// Provider is a test double for tts.Provider. By default every Synthesize
// call writes a small placeholder file so callers can exercise their cleanup
// paths.
type Provider struct {
	ProviderName string

	// Err, when set, is returned by every Synthesize call.
	Err error

	// SynthesizeFunc, when set, overrides the default behavior.
	SynthesizeFunc func(ctx context.Context, text string) (tts.Artifact, error)

	mu    sync.Mutex
	texts []string
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Artifact, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.mu.Unlock()

	if p.SynthesizeFunc != nil {
		return p.SynthesizeFunc(ctx, text)
	}
	if p.Err != nil {
		return tts.Artifact{}, p.Err
	}

	tmp, err := os.CreateTemp("", "daisy-mock-*.wav")
	if err != nil {
		return tts.Artifact{}, err
	}
	if _, err := tmp.WriteString("mock audio"); err != nil {
		tmp.Close()
		return tts.Artifact{}, err
	}
	if err := tmp.Close(); err != nil {
		return tts.Artifact{}, err
	}
	return tts.Artifact{Path: tmp.Name(), Format: tts.FormatWAV}, nil
}

// Texts returns a copy of every text passed to Synthesize.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}
