// Package anyllm serves tutor replies through github.com/mozilla-ai/any-llm-go,
// which gives one client for Groq, Anthropic, Gemini, Ollama and several
// other hosted or local backends.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// backendFactory matches the constructors of the any-llm-go provider packages.
type backendFactory func(...anyllmlib.Option) (anyllmlib.Provider, error)

func factory[P anyllmlib.Provider](newFn func(...anyllmlib.Option) (P, error)) backendFactory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return newFn(opts...)
	}
}

var backends = map[string]backendFactory{
	"groq":      factory(groq.New),
	"openai":    factory(anyllmoai.New),
	"anthropic": factory(anthropic.New),
	"gemini":    factory(gemini.New),
	"ollama":    factory(ollama.New),
	"deepseek":  factory(deepseek.New),
	"mistral":   factory(mistral.New),
	"llamacpp":  factory(llamacpp.New),
}

// Backends lists the supported backend names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider is an [llm.Provider] on top of one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a provider for the named backend (see [Backends]). Without a
// WithAPIKey option the backend reads its usual environment variable, for
// example GROQ_API_KEY.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if backend == "" {
		return nil, errors.New("anyllm: backend name must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	newBackend, ok := backends[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)",
			backend, strings.Join(Backends(), ", "))
	}
	b, err := newBackend(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backend, err)
	}
	return &Provider{backend: b, model: model}, nil
}

// StreamCompletion forwards the request to the backend and relays its
// deltas. A backend error reported after the last delta becomes a final
// chunk with [llm.FinishReasonError].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	deltas, errs := p.backend.CompletionStream(ctx, p.buildParams(req))

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		emit := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for d := range deltas {
			if len(d.Choices) == 0 {
				continue
			}
			c := llm.Chunk{Text: d.Choices[0].Delta.Content, FinishReason: d.Choices[0].FinishReason}
			if c.Text == "" && c.FinishReason == "" {
				continue
			}
			if !emit(c) {
				return
			}
		}
		// The error channel is only meaningful once deltas are drained.
		if err := <-errs; err != nil {
			emit(llm.Chunk{Text: err.Error(), FinishReason: llm.FinishReasonError})
		}
	}()
	return out, nil
}

// Capabilities reports the limits of the configured model.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return llm.CapabilitiesFor(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs, Stop: req.Stop}
	if req.Temperature != 0 {
		params.Temperature = ptr(req.Temperature)
	}
	if req.TopP != 0 {
		params.TopP = ptr(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = ptr(req.MaxTokens)
	}
	return params
}

func convertMessage(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name}
}

func ptr[T any](v T) *T { return &v }
