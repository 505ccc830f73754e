package exchange

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/edusync/internal/conversation"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/pkg/provider/llm"
	llmmock "github.com/MrWong99/edusync/pkg/provider/llm/mock"
	"github.com/MrWong99/edusync/pkg/types"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return met
}

func newManager(t *testing.T, p llm.Provider, opts ...Option) (*Manager, *conversation.Store) {
	t.Helper()
	store := conversation.New()
	opts = append([]Option{WithMetrics(testMetrics(t))}, opts...)
	return New(store, p, opts...), store
}

func TestSubmit_ConcatenatesChunks(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Hel"}, {Text: "lo"}, {Text: ""}, {Text: "!"}, {FinishReason: "stop"},
	}}
	m, store := newManager(t, p)

	reply, err := m.Submit(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if reply != "Hello!" {
		t.Errorf("reply = %q, want %q", reply, "Hello!")
	}

	h := store.History()
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
	if h[0].Role != conversation.RoleUser || h[0].Content != "Hi" {
		t.Errorf("turn 0 = %+v", h[0])
	}
	if h[1].Role != conversation.RoleAssistant || h[1].Content != "Hello!" {
		t.Errorf("turn 1 = %+v", h[1])
	}
	if got := m.LastReply(); got != "Hello!" {
		t.Errorf("LastReply = %q", got)
	}
}

func TestSubmit_SendsFullHistoryAndGeneration(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "ok"}}}
	m, store := newManager(t, p)
	store.Seed("Hello! How are you?")

	if _, err := m.Submit(context.Background(), "Fine"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("StreamCompletion calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	want := []types.Message{
		{Role: "assistant", Content: "Hello! How are you?"},
		{Role: "user", Content: "Fine"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("messages = %+v, want %+v", req.Messages, want)
	}
	for i := range want {
		if req.Messages[i].Role != want[i].Role || req.Messages[i].Content != want[i].Content {
			t.Errorf("message[%d] = %+v, want %+v", i, req.Messages[i], want[i])
		}
	}
	if req.Temperature != 0.7 || req.MaxTokens != 150 || req.TopP != 0.9 {
		t.Errorf("generation = (%v, %d, %v), want (0.7, 150, 0.9)", req.Temperature, req.MaxTokens, req.TopP)
	}
	if req.Stop != nil {
		t.Errorf("Stop = %v, want nil", req.Stop)
	}
}

func TestSubmit_CustomGeneration(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "ok"}}}
	m, _ := newManager(t, p, WithGeneration(Generation{Temperature: 0.2, MaxTokens: 800, Stop: []string{"\n\n"}}))

	if _, err := m.Submit(context.Background(), "Hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req := p.Calls()[0].Req
	if req.MaxTokens != 800 || req.Temperature != 0.2 || len(req.Stop) != 1 {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestSubmit_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		p := &llmmock.Provider{}
		m, store := newManager(t, p)

		_, err := m.Submit(context.Background(), in)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Submit(%q) err = %v, want ErrEmptyInput", in, err)
		}
		if store.Len() != 0 {
			t.Errorf("Submit(%q) changed store: len=%d", in, store.Len())
		}
		if len(p.Calls()) != 0 {
			t.Errorf("Submit(%q) called provider", in)
		}
	}
}

func TestSubmit_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider *llmmock.Provider
		wantText string
	}{
		{
			name:     "start error",
			provider: &llmmock.Provider{StreamErr: errors.New("invalid api key")},
			wantText: "invalid api key",
		},
		{
			name: "mid-stream error",
			provider: &llmmock.Provider{StreamChunks: []llm.Chunk{
				{Text: "partial "},
				{Text: "connection reset", FinishReason: llm.FinishReasonError},
			}},
			wantText: "connection reset",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, store := newManager(t, tc.provider)

			reply, err := m.Submit(context.Background(), "Hi")
			if !errors.Is(err, ErrGenerationFailed) {
				t.Fatalf("err = %v, want ErrGenerationFailed", err)
			}
			if !strings.Contains(err.Error(), tc.wantText) {
				t.Errorf("err = %q, want it to mention %q", err, tc.wantText)
			}
			if reply != "" {
				t.Errorf("reply = %q, want empty", reply)
			}
			h := store.History()
			if len(h) != 1 || h[0].Role != conversation.RoleUser {
				t.Errorf("history = %+v, want only the user turn", h)
			}
			if len(tc.provider.Calls()) != 1 {
				t.Errorf("provider calls = %d, want exactly 1 (no retry)", len(tc.provider.Calls()))
			}
		})
	}
}

func TestSubmit_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "late"}}, Block: block}
	m, store := newManager(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Submit(ctx, "Hi")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap context.DeadlineExceeded", err)
	}
	if store.Len() != 1 {
		t.Errorf("store len = %d, want 1", store.Len())
	}
}

func TestSubmit_FailureThenRetryByUser(t *testing.T) {
	p := &llmmock.Provider{StreamErr: errors.New("down")}
	m, store := newManager(t, p)

	if _, err := m.Submit(context.Background(), "Hi"); err == nil {
		t.Fatal("expected error")
	}

	p.StreamErr = nil
	p.StreamChunks = []llm.Chunk{{Text: "Back!"}}
	reply, err := m.Submit(context.Background(), "Hi again")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if reply != "Back!" {
		t.Errorf("reply = %q", reply)
	}
	// Lenient alternation keeps both user turns.
	if store.Len() != 3 {
		t.Errorf("store len = %d, want 3", store.Len())
	}
}

func TestSubmit_StrictAlternationRejectsSecondUserTurn(t *testing.T) {
	p := &llmmock.Provider{StreamErr: errors.New("down")}
	store := conversation.New(conversation.WithStrictAlternation())
	m := New(store, p, WithMetrics(testMetrics(t)))

	if _, err := m.Submit(context.Background(), "Hi"); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("first Submit err = %v", err)
	}
	_, err := m.Submit(context.Background(), "Hi again")
	if !errors.Is(err, conversation.ErrInvalidRoleSequence) {
		t.Errorf("second Submit err = %v, want ErrInvalidRoleSequence", err)
	}
}

func TestSubmitStream_DeltasMatchReply(t *testing.T) {
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	m, _ := newManager(t, p)

	var deltas []string
	reply, err := m.SubmitStream(context.Background(), "Hi", func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("SubmitStream: %v", err)
	}
	if strings.Join(deltas, "") != reply || len(deltas) != 3 {
		t.Errorf("deltas = %v, reply = %q", deltas, reply)
	}
}

func TestSubmit_OverContextWindowStillSends(t *testing.T) {
	p := &llmmock.Provider{
		StreamChunks:      []llm.Chunk{{Text: "ok"}},
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 1},
	}
	m, _ := newManager(t, p)

	if _, err := m.Submit(context.Background(), strings.Repeat("long ", 20)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := len(p.Calls()[0].Req.Messages); got != 1 {
		t.Errorf("messages sent = %d, want 1 (no truncation)", got)
	}
}

func TestLastReply_Empty(t *testing.T) {
	m, _ := newManager(t, &llmmock.Provider{})
	if got := m.LastReply(); got != "" {
		t.Errorf("LastReply = %q, want empty", got)
	}
}
