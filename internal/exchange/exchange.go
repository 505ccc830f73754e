// Package exchange runs one user→assistant round trip against the completion
// provider.
//
// A [Manager] appends the user's turn, streams a reply for the whole history,
// concatenates the chunks in arrival order and appends the result as the
// assistant's turn. Nothing is retried: a failed stream leaves the user turn
// in place without a reply and surfaces [ErrGenerationFailed].
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/edusync/internal/conversation"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/pkg/provider/llm"
)

var (
	// ErrEmptyInput is returned when the submitted text is empty or
	// whitespace-only. The conversation is not touched.
	ErrEmptyInput = errors.New("exchange: empty input")

	// ErrGenerationFailed wraps any failure of the completion provider. The
	// underlying cause stays reachable through errors.Is / errors.As.
	ErrGenerationFailed = errors.New("exchange: generation failed")
)

// Generation holds the sampling parameters sent with every request.
type Generation struct {
	Temperature  float64
	MaxTokens    int
	TopP         float64
	Stop         []string
	SystemPrompt string
}

// DefaultGeneration matches the tuning the assistant was designed around:
// short, moderately creative replies.
func DefaultGeneration() Generation {
	return Generation{
		Temperature: 0.7,
		MaxTokens:   150,
		TopP:        0.9,
	}
}

// IsZero reports whether no sampling parameter is set.
func (g Generation) IsZero() bool {
	return g.Temperature == 0 && g.MaxTokens == 0 && g.TopP == 0 && len(g.Stop) == 0 && g.SystemPrompt == ""
}

// Option configures a [Manager].
type Option func(*Manager)

// WithGeneration overrides [DefaultGeneration]. A zero Generation is ignored.
func WithGeneration(g Generation) Option {
	return func(m *Manager) {
		if !g.IsZero() {
			m.gen = g
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

// WithProviderName sets the provider label used on metrics and spans.
func WithProviderName(name string) Option {
	return func(m *Manager) {
		m.providerName = name
	}
}

// Manager performs exchanges for one conversation. Callers must serialise
// Submit calls for the same conversation; the session layer does this.
type Manager struct {
	store        *conversation.Store
	provider     llm.Provider
	gen          Generation
	metrics      *observe.Metrics
	providerName string
}

// New creates a Manager bound to store and provider.
func New(store *conversation.Store, provider llm.Provider, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		provider:     provider,
		gen:          DefaultGeneration(),
		providerName: "llm",
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Submit performs one exchange and returns the full reply.
func (m *Manager) Submit(ctx context.Context, userText string) (string, error) {
	return m.SubmitStream(ctx, userText, nil)
}

// SubmitStream is like [Manager.Submit] but also calls onDelta with every
// non-empty chunk as it arrives. The returned reply is identical to the
// concatenation of all deltas. onDelta may be nil.
func (m *Manager) SubmitStream(ctx context.Context, userText string, onDelta func(string)) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyInput
	}

	ctx, span := observe.StartSpan(ctx, "exchange.submit",
		trace.WithAttributes(attribute.String("llm.provider", m.providerName)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	if err := m.store.Append(conversation.Turn{Role: conversation.RoleUser, Content: userText}); err != nil {
		observe.FailSpan(span, err, "append user turn")
		return "", fmt.Errorf("exchange: append user turn: %w", err)
	}
	m.metrics.RecordTurn(ctx, string(conversation.RoleUser))

	req := m.buildRequest()
	if caps := m.provider.Capabilities(); caps.ContextWindow > 0 {
		if est := m.store.TokenEstimate(); est > caps.ContextWindow {
			log.Warn("history exceeds model context window; sending it unchanged",
				"estimated_tokens", est, "context_window", caps.ContextWindow)
		}
	}
	span.SetAttributes(attribute.Int("exchange.history_len", len(req.Messages)))

	start := time.Now()
	reply, err := m.stream(ctx, req, onDelta)
	m.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.metrics.RecordProviderRequest(ctx, m.providerName, "llm", "error")
		m.metrics.RecordProviderError(ctx, m.providerName, "llm")
		observe.FailSpan(span, err, "generation failed")
		log.Error("completion failed", "provider", m.providerName, "error", err)
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	m.metrics.RecordProviderRequest(ctx, m.providerName, "llm", "ok")

	if err := m.store.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: reply}); err != nil {
		observe.FailSpan(span, err, "append assistant turn")
		return "", fmt.Errorf("exchange: append assistant turn: %w", err)
	}
	m.metrics.RecordTurn(ctx, string(conversation.RoleAssistant))
	span.SetAttributes(attribute.Int("exchange.reply_len", len(reply)))
	log.Debug("exchange complete", "reply_len", len(reply), "duration", time.Since(start))
	return reply, nil
}

// History returns a copy of the conversation.
func (m *Manager) History() []conversation.Turn {
	return m.store.History()
}

// LastReply returns the content of the most recent assistant turn, or ""
// when there is none.
func (m *Manager) LastReply() string {
	h := m.store.History()
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == conversation.RoleAssistant {
			return h[i].Content
		}
	}
	return ""
}

// Store returns the underlying conversation store.
func (m *Manager) Store() *conversation.Store {
	return m.store
}

func (m *Manager) buildRequest() llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:     m.store.Messages(),
		Temperature:  m.gen.Temperature,
		MaxTokens:    m.gen.MaxTokens,
		TopP:         m.gen.TopP,
		Stop:         m.gen.Stop,
		SystemPrompt: m.gen.SystemPrompt,
	}
}

// stream drains the provider's chunk channel in order. The reply is only
// returned once the channel has closed cleanly.
func (m *Manager) stream(ctx context.Context, req llm.CompletionRequest, onDelta func(string)) (string, error) {
	ch, err := m.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return "", ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				// The provider closes the channel on cancellation too.
				if err := ctx.Err(); err != nil {
					return "", err
				}
				return buf.String(), nil
			}
			if chunk.FinishReason == llm.FinishReasonError {
				go drain(ch)
				return "", fmt.Errorf("stream: %s", chunk.Text)
			}
			if chunk.Text == "" {
				continue
			}
			buf.WriteString(chunk.Text)
			if onDelta != nil {
				onDelta(chunk.Text)
			}
		}
	}
}

// drain consumes the rest of ch so the provider goroutine can exit.
func drain(ch <-chan llm.Chunk) {
	for range ch {
	}
}
