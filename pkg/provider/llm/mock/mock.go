// Package mock provides a scripted llm.Provider for tests.
//
//	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "Hello!"}, {FinishReason: "stop"}}}
//
// Set fields before the first call. End StreamChunks with a chunk whose
// FinishReason is llm.FinishReasonError to simulate a stream that breaks
// halfway.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// StreamCall is one recorded StreamCompletion invocation. Req.Messages is
// cloned at call time, so later mutation by the caller does not leak in.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

type Provider struct {
	// StreamChunks are replayed in order on every stream.
	StreamChunks []llm.Chunk
	// StreamErr makes StreamCompletion fail before a channel is opened.
	StreamErr error
	// Block holds each stream back until it is closed or the call's context
	// ends.
	Block <-chan struct{}

	ModelCapabilities     types.ModelCapabilities
	CapabilitiesCallCount int

	mu    sync.Mutex
	calls []StreamCall
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	req.Messages = slices.Clone(req.Messages)

	p.mu.Lock()
	p.calls = append(p.calls, StreamCall{Ctx: ctx, Req: req})
	chunks, block, err := slices.Clone(p.StreamChunks), p.Block, p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	out := make(chan llm.Chunk, len(chunks))
	go replay(ctx, out, chunks, block)
	return out, nil
}

func replay(ctx context.Context, out chan<- llm.Chunk, chunks []llm.Chunk, block <-chan struct{}) {
	defer close(out)
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return
		}
	}
	for _, c := range chunks {
		select {
		case out <- c:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded streams in call order.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
