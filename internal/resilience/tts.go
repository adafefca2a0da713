package resilience

import (
	"context"

	"github.com/daisyvoice/daisy/pkg/provider/tts"
)

// TTSChain implements [tts.Provider] with failover across synthesis engines,
// typically a local engine first with hosted ones behind it.
type TTSChain struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSChain)(nil)

// NewTTSChain creates a [TTSChain] with primary as the preferred engine.
func NewTTSChain(primary tts.Provider, cfg ChainConfig) *TTSChain {
	return &TTSChain{chain: NewChain(primary.Name(), primary, cfg)}
}

// Add registers a further synthesis engine.
func (t *TTSChain) Add(p tts.Provider) {
	t.chain.Add(p.Name(), p)
}

// Name implements [tts.Provider].
func (t *TTSChain) Name() string {
	return "chain(" + t.chain.Names()[0] + ")"
}

// Synthesize implements [tts.Provider], trying each engine until one
// produces an audio artifact.
func (t *TTSChain) Synthesize(ctx context.Context, text string) (tts.Artifact, error) {
	return Run(ctx, t.chain, func(p tts.Provider) (tts.Artifact, error) {
		return p.Synthesize(ctx, text)
	})
}
