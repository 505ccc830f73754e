package resilience

import (
	"context"

	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/types"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// recognition backends. Each backend has its own circuit breaker.
//
// An empty transcript is a successful call: the next backend is only tried
// when a provider returns an error.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe recognises seg on the first healthy provider.
func (f *STTFallback) Transcribe(ctx context.Context, seg stt.Segment) (types.Transcript, error) {
	return Call(f.group, func(p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, seg)
	})
}
