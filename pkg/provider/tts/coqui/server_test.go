package coqui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

// serveJSON answers GET path with v and 404s everything else.
func serveJSON(t *testing.T, path string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     APIMode
		path     string
		body     any
		wantIDs  []string
		wantMeta map[string]string
	}{
		{
			name: "xtts studio speakers sorted",
			mode: APIModeXTTS,
			path: studioSpeakersEndpoint,
			body: map[string]any{
				"speaker_bob":   map[string]any{"type": "studio"},
				"speaker_alice": map[string]any{"type": "studio"},
			},
			wantIDs:  []string{"speaker_alice", "speaker_bob"},
			wantMeta: map[string]string{"type": "studio"},
		},
		{
			name: "multi-speaker model",
			mode: APIModeStandard,
			path: detailsEndpoint,
			body: detailsResponse{
				ModelName: "tts_models/en/vctk/vits",
				Speakers:  []string{"p227", "p225", "p226"},
			},
			wantIDs:  []string{"p225", "p226", "p227"},
			wantMeta: map[string]string{"model_name": "tts_models/en/vctk/vits"},
		},
		{
			name:     "single-speaker model",
			mode:     APIModeStandard,
			path:     detailsEndpoint,
			body:     detailsResponse{ModelName: "tts_models/en/ljspeech/vits"},
			wantIDs:  []string{"tts_models/en/ljspeech/vits"},
			wantMeta: map[string]string{"type": "single-speaker"},
		},
		{
			name:    "unnamed model",
			mode:    APIModeStandard,
			path:    detailsEndpoint,
			body:    detailsResponse{},
			wantIDs: []string{"default"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := mustNew(t, serveJSON(t, tt.path, tt.body), WithAPIMode(tt.mode))
			voices, err := p.ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tt.wantIDs))
			}
			for i, v := range voices {
				if v.ID != tt.wantIDs[i] || v.Provider != "coqui" {
					t.Errorf("voices[%d] = %+v, want coqui voice %q", i, v, tt.wantIDs[i])
				}
				for k, want := range tt.wantMeta {
					if v.Metadata[k] != want {
						t.Errorf("voices[%d] %s = %q, want %q", i, k, v.Metadata[k], want)
					}
				}
			}
		})
	}
}

func TestListVoices_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "{not json")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mustNew(t, serve(t, tt.handler)).ListVoices(context.Background())
			if err == nil || !strings.HasPrefix(err.Error(), "coqui:") {
				t.Fatalf("err = %v, want a coqui: error", err)
			}
		})
	}
}
