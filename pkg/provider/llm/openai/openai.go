// Package openai streams tutor replies from the OpenAI chat completions API
// or any endpoint that speaks it. Groq is reached by passing
// WithBaseURL(GroqBaseURL).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/types"
)

// GroqBaseURL is Groq's OpenAI-compatible API root.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// chunkBuffer sizes the channel between the SSE reader and the consumer.
const chunkBuffer = 32

var _ llm.Provider = (*Provider)(nil)

// Provider is an [llm.Provider] on top of the official OpenAI SDK.
type Provider struct {
	client oai.Client
	model  string
	caps   types.ModelCapabilities
}

// Option adjusts the SDK client built by [New].
type Option func(*[]option.RequestOption)

func add(o option.RequestOption) Option {
	return func(opts *[]option.RequestOption) { *opts = append(*opts, o) }
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(url string) Option { return add(option.WithBaseURL(url)) }

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option { return add(option.WithOrganization(org)) }

// WithTimeout bounds every HTTP round trip, stream included.
func WithTimeout(d time.Duration) Option {
	return add(option.WithHTTPClient(&http.Client{Timeout: d}))
}

// WithMaxRetries sets how often the SDK retries a failed request before the
// stream is reported as failed.
func WithMaxRetries(n int) Option { return add(option.WithMaxRetries(n)) }

// New builds a provider for model. Both arguments are required.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		caps:   llm.CapabilitiesFor(model),
	}, nil
}

// StreamCompletion opens a streaming chat completion. Request and HTTP
// failures are returned directly; failures after the first byte arrive as a
// final chunk with [llm.FinishReasonError].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	out := make(chan llm.Chunk, chunkBuffer)
	go func() {
		defer close(out)
		defer stream.Close()

		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for stream.Next() {
			ev := stream.Current()
			if len(ev.Choices) == 0 {
				continue
			}
			delta := ev.Choices[0]
			if delta.Delta.Content == "" && delta.FinishReason == "" {
				continue
			}
			if !send(llm.Chunk{Text: delta.Delta.Content, FinishReason: delta.FinishReason}) {
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(llm.Chunk{Text: err.Error(), FinishReason: llm.FinishReasonError})
		}
	}()
	return out, nil
}

// Capabilities reports the limits of the configured model.
func (p *Provider) Capabilities() types.ModelCapabilities { return p.caps }

// buildParams maps a request onto SDK params. Zero-valued sampling settings
// are left unset so the API applies its own defaults.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.TopP != 0 {
		params.TopP = param.NewOpt(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if len(req.Stop) > 0 {
		params.Stop = oai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}
	return params, nil
}

func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		var a oai.ChatCompletionAssistantMessageParam
		a.Content.OfString = oai.String(m.Content)
		if m.Name != "" {
			a.Name = oai.String(m.Name)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &a}, nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}
