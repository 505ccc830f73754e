// Package mock provides a canned stt.Provider for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

// TranscribeCall is one recorded Transcribe invocation.
type TranscribeCall struct {
	Ctx     context.Context
	Segment stt.Segment
}

// Provider returns Transcript, or Err when set, for every segment.
type Provider struct {
	Transcript types.Transcript
	Err        error

	mu    sync.Mutex
	calls []TranscribeCall
}

func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, TranscribeCall{Ctx: ctx, Segment: seg})
	if p.Err != nil {
		return types.Transcript{}, p.Err
	}
	return p.Transcript, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
