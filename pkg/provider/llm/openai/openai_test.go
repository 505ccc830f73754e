package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/types"
)

func TestConvertMessage(t *testing.T) {
	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: "system"},
		{role: "user"},
		{role: "assistant"},
		{role: "tool", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			got, err := convertMessage(types.Message{Role: tc.role, Content: "x"})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			set := map[string]bool{
				"system":    got.OfSystem != nil,
				"user":      got.OfUser != nil,
				"assistant": got.OfAssistant != nil,
			}
			for role, ok := range set {
				if ok != (role == tc.role) {
					t.Errorf("variant %s set = %v", role, ok)
				}
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "llama3-8b-8192"}

	t.Run("full request", func(t *testing.T) {
		params, err := p.buildParams(llm.CompletionRequest{
			SystemPrompt: "You are a patient study coach.",
			Messages: []types.Message{
				{Role: "assistant", Content: "Hello! What are we learning today?"},
				{Role: "user", Content: "Fractions."},
			},
			Temperature: 0.7,
			MaxTokens:   150,
			TopP:        0.9,
			Stop:        []string{"\nUser:"},
		})
		if err != nil {
			t.Fatalf("buildParams: %v", err)
		}
		if string(params.Model) != "llama3-8b-8192" {
			t.Errorf("model = %q", params.Model)
		}
		if len(params.Messages) != 3 || params.Messages[0].OfSystem == nil {
			t.Fatalf("want system prompt then 2 turns, got %d messages", len(params.Messages))
		}
		if params.Temperature.Value != 0.7 || params.TopP.Value != 0.9 || params.MaxCompletionTokens.Value != 150 {
			t.Errorf("sampling not mapped: temp=%v top_p=%v max=%v",
				params.Temperature.Value, params.TopP.Value, params.MaxCompletionTokens.Value)
		}
		if len(params.Stop.OfStringArray) != 1 {
			t.Errorf("stop = %v", params.Stop.OfStringArray)
		}
	})

	t.Run("zero values stay unset", func(t *testing.T) {
		params, err := p.buildParams(llm.CompletionRequest{
			Messages: []types.Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("buildParams: %v", err)
		}
		if len(params.Messages) != 1 {
			t.Errorf("messages = %d, want 1", len(params.Messages))
		}
		if params.Temperature.Valid() || params.TopP.Valid() || params.MaxCompletionTokens.Valid() {
			t.Error("zero sampling settings should be omitted")
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := p.buildParams(llm.CompletionRequest{
			Messages: []types.Message{{Role: "user", Content: "a"}, {Role: "narrator", Content: "b"}},
		})
		if err == nil || !strings.Contains(err.Error(), "message 1") {
			t.Fatalf("err = %v, want it to name the bad message", err)
		}
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name, key, model string
		opts             []Option
		wantErr          bool
	}{
		{"missing key", "", "llama3-8b-8192", nil, true},
		{"missing model", "gsk-test", "", nil, true},
		{"with options", "gsk-test", "llama3-8b-8192",
			[]Option{WithBaseURL(GroqBaseURL), WithOrganization("org-123"), WithMaxRetries(0)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.key, tc.model, tc.opts...)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && p.Capabilities().ContextWindow != 8_192 {
				t.Errorf("capabilities not resolved for %s", tc.model)
			}
		})
	}
}

// sseServer streams the given content deltas as chat completion chunks.
func sseServer(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gsk-test" {
			http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, d := range deltas {
			finish := "null"
			if i == len(deltas)-1 {
				finish = `"stop"`
			}
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\","+
				"\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":%s}]}\n\n", d, finish)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamCompletion(t *testing.T) {
	srv := sseServer(t, "Let's ", "practise ", "fractions.")
	p, err := New("gsk-test", "llama3-8b-8192", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "Help me with maths"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text strings.Builder
	var finish string
	for c := range ch {
		text.WriteString(c.Text)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
	}
	if text.String() != "Let's practise fractions." {
		t.Errorf("text = %q", text.String())
	}
	if finish != "stop" {
		t.Errorf("finish reason = %q, want stop", finish)
	}
}

func TestStreamCompletion_RejectedRequest(t *testing.T) {
	srv := sseServer(t, "unused")
	p, err := New("wrong-key", "llama3-8b-8192", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected the rejected request to fail before streaming")
	}
	if ch != nil {
		t.Error("channel should be nil on error")
	}
}
