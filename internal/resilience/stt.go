package resilience

import (
	"context"
	"errors"

	"github.com/daisyvoice/daisy/pkg/provider/stt"
)

// STTChain implements [stt.Provider] with failover across multiple
// transcription backends. A clip that comes back as silence stops the chain:
// re-transcribing it elsewhere would burn quota on the same audio.
type STTChain struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an [STTChain] with primary as the preferred backend.
func NewSTTChain(primary stt.Provider, cfg ChainConfig) *STTChain {
	if cfg.Terminal == nil {
		cfg.Terminal = func(err error) bool {
			return errors.Is(err, stt.ErrNoSpeech)
		}
	}
	return &STTChain{chain: NewChain(primary.Name(), primary, cfg)}
}

// Add registers a further transcription backend.
func (s *STTChain) Add(p stt.Provider) {
	s.chain.Add(p.Name(), p)
}

// Name implements [stt.Provider].
func (s *STTChain) Name() string {
	return "chain(" + s.chain.Names()[0] + ")"
}

// Transcribe implements [stt.Provider], trying each backend until one
// returns a transcript.
func (s *STTChain) Transcribe(ctx context.Context, clip stt.Clip) (string, error) {
	return Run(ctx, s.chain, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, clip)
	})
}
