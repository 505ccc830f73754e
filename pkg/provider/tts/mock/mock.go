// Package mock provides a canned tts.Provider for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/edusync/pkg/provider/tts"
	"github.com/MrWong99/edusync/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// Provider answers every Synthesize with a copy of Audio. A nil Audio yields a
// one-byte WAV placeholder.
type Provider struct {
	Audio         *tts.Audio
	SynthesizeErr error

	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error

	mu    sync.Mutex
	calls []SynthesizeCall
}

func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	switch {
	case p.SynthesizeErr != nil:
		return nil, p.SynthesizeErr
	case p.Audio == nil:
		return &tts.Audio{Data: []byte{0}, MIMEType: "audio/wav"}, nil
	}
	out := *p.Audio
	out.Data = slices.Clone(out.Data)
	return &out, nil
}

func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
