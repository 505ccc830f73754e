// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote chat-completion API (Groq, OpenAI, or any
// OpenAI-compatible endpoint) and exposes a uniform streaming interface to the
// exchange manager without coupling it to a specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/MrWong99/edusync/pkg/types"
)

// FinishReasonError is the FinishReason carried by a chunk that reports a
// failure after the stream was opened. The chunk's Text holds the error message.
const FinishReasonError = "error"

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is typically
	// from the "user" role and drives the response.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero means
	// use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// TopP is the nucleus sampling cutoff in (0.0, 1.0]. Zero means use the
	// provider default.
	TopP float64

	// Stop lists sequences at which generation halts. Nil means no stop sequence.
	Stop []string

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history as a "system"-role message.
	SystemPrompt string
}

// Chunk is a single token or fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk. When FinishReason is
	// FinishReasonError it carries the error message instead.
	Text string

	// FinishReason is set on the final chunk and indicates why generation stopped.
	// Common values are "stop" (natural end), "length" (MaxTokens reached),
	// FinishReasonError, and "" (non-final chunk).
	FinishReason string
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel that
	// emits Chunk values as they arrive. The channel is closed by the implementation
	// when generation finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors that occur
	// after the channel is opened are surfaced as a Chunk with FinishReason
	// FinishReasonError; the initial error return is non-nil only for failures that
	// prevent the stream from starting (e.g., invalid credentials, malformed request).
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports.
	Capabilities() types.ModelCapabilities
}
