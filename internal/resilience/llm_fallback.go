package resilience

import (
	"context"

	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/types"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// completion backends. Each backend has its own circuit breaker; when the
// primary fails to open a stream or its breaker is open, the next healthy
// fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// StreamCompletion opens a stream on the first healthy provider. Only stream
// setup is covered by failover. Once chunks flow, a mid-stream error chunk is
// delivered to the caller unchanged; replaying half a reply on another model
// would hand the user two different answers glued together.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Call(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Capabilities returns the capabilities of the primary. Capabilities are
// static metadata and do not participate in failover.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// Names lists the backends in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }
