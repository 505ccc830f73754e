package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/stt"
)

func TestNew(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel || p.language != defaultLanguage ||
		p.endpoint != deepgramEndpoint || p.sampleRate != defaultSampleRate {
		t.Errorf("defaults = %+v", p)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		lang string
		want map[string]string
	}{
		{
			name: "defaults",
			want: map[string]string{
				"model": "nova-3", "language": "en", "punctuate": "true",
				"interim_results": "false", "encoding": "linear16",
				"sample_rate": "16000", "channels": "1",
			},
		},
		{
			name: "options",
			opts: []Option{WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000)},
			want: map[string]string{"model": "base", "language": "de-DE", "sample_rate": "48000"},
		},
		{
			name: "segment language wins",
			opts: []Option{WithLanguage("en")},
			lang: "fr-FR",
			want: map[string]string{"language": "fr-FR"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := New("key", tt.opts...)
			raw, err := p.buildURL(tt.lang)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			for k, want := range tt.want {
				if got := u.Query().Get(k); got != want {
					t.Errorf("%s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestFinals(t *testing.T) {
	msgs := []struct {
		raw   string
		taken bool
	}{
		{`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" Hello world ","confidence":0.9}]}}`, true},
		{`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"interim","confidence":0.1}]}}`, false},
		{`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, false},
		{`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  ","confidence":0.2}]}}`, false},
		{`{"type":"SpeechStarted"}`, false},
		{`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"again","confidence":0.7}]}}`, true},
	}

	var f finals
	for i, m := range msgs {
		ev, ok := decodeEvent([]byte(m.raw))
		if !ok {
			t.Fatalf("message %d not decoded", i)
		}
		if got := f.add(ev); got != m.taken {
			t.Errorf("message %d taken = %v, want %v", i, got, m.taken)
		}
	}

	tr := f.transcript(1500 * time.Millisecond)
	if tr.Text != "Hello world again" {
		t.Errorf("text = %q", tr.Text)
	}
	if tr.Confidence < 0.799 || tr.Confidence > 0.801 {
		t.Errorf("confidence = %v, want mean 0.8", tr.Confidence)
	}
	if tr.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", tr.Duration)
	}
}

func TestDecodeEvent_Rejects(t *testing.T) {
	for _, raw := range []string{`{invalid`, `{"channel":{}}`} {
		if _, ok := decodeEvent([]byte(raw)); ok {
			t.Errorf("decodeEvent(%s) accepted", raw)
		}
	}
}

// fakeDeepgram accepts a socket, counts binary frames until CloseStream and
// then answers with one final result per transcript followed by Metadata.
func fakeDeepgram(t *testing.T, transcripts []string, frames *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				frames.Add(1)
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				break
			}
		}
		for _, text := range transcripts {
			body := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"` + text + `","confidence":0.5}]}}`
			if err := conn.Write(ctx, websocket.MessageText, []byte(body)); err != nil {
				return
			}
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		pcmBytes   int
		replies    []string
		wantText   string
		wantFrames int32
		wantErr    bool
	}{
		{"joins finals", "test-key", 8000, []string{"I feel", "good today."}, "I feel good today.", 3, false},
		{"nothing recognised", "test-key", 3200, nil, "", 1, false},
		{"rejected key", "wrong-key", 3200, nil, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frames atomic.Int32
			p, _ := New(tt.key, WithEndpoint(fakeDeepgram(t, tt.replies, &frames)))

			clip := audio.Clip{PCM: make([]byte, tt.pcmBytes), SampleRate: 16000, Channels: 1}
			got, err := p.Transcribe(context.Background(), stt.Segment{Clip: clip})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Text != tt.wantText {
				t.Errorf("text = %q, want %q", got.Text, tt.wantText)
			}
			if n := frames.Load(); n != tt.wantFrames {
				t.Errorf("binary frames = %d, want %d", n, tt.wantFrames)
			}
			if tt.wantText != "" && got.Confidence != 0.5 {
				t.Errorf("confidence = %v, want 0.5", got.Confidence)
			}
		})
	}
}

func TestTranscribe_EmptyClipSkipsDial(t *testing.T) {
	p, _ := New("test-key", WithEndpoint("ws://127.0.0.1:1"))
	got, err := p.Transcribe(context.Background(), stt.Segment{})
	if err != nil || got.Text != "" {
		t.Fatalf("Transcribe = %+v, %v", got, err)
	}
}
