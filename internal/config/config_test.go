package config_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/edusync/internal/config"
	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/provider/tts"
	"github.com/MrWong99/edusync/pkg/types"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  session_idle_timeout: 15m

providers:
  llm:
    name: groq
    api_key: gsk-test
    model: llama3-8b-8192
  llm_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
  stt:
    name: deepgram
    api_key: dg-test
  tts:
    name: elevenlabs
    api_key: el-test

chat:
  temperature: 0.5
  max_tokens: 200
  top_p: 0.8
  strict_alternation: true

features:
  speech: true
  reporting: true

voice:
  voice_id: rachel
  speed_factor: 1.1
  language: en-US

report:
  title: Weekly Learning Analysis
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.SessionIdleTimeout != 15*time.Minute {
		t.Errorf("server.session_idle_timeout: got %v, want 15m", cfg.Server.SessionIdleTimeout)
	}
	if cfg.Providers.LLM.Name != "groq" {
		t.Errorf("providers.llm.name: got %q, want %q", cfg.Providers.LLM.Name, "groq")
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "openai" {
		t.Errorf("providers.llm_fallbacks: got %+v", cfg.Providers.LLMFallbacks)
	}
	if cfg.Chat.MaxTokens != 200 || cfg.Chat.Temperature != 0.5 || !cfg.Chat.StrictAlternation {
		t.Errorf("chat: got %+v", cfg.Chat)
	}
	if !cfg.Features.Speech || !cfg.Features.Reporting {
		t.Errorf("features: got %+v", cfg.Features)
	}
	if cfg.Voice.SpeedFactor != 1.1 {
		t.Errorf("voice.speed_factor: got %.2f, want 1.1", cfg.Voice.SpeedFactor)
	}
	if cfg.Report.Title != "Weekly Learning Analysis" {
		t.Errorf("report.title: got %q", cfg.Report.Title)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: groq\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.SessionIdleTimeout != config.DefaultSessionIdleTimeout {
		t.Errorf("session_idle_timeout: got %v", cfg.Server.SessionIdleTimeout)
	}
	if cfg.Chat.Temperature != 0.7 || cfg.Chat.MaxTokens != 150 || cfg.Chat.TopP != 0.9 {
		t.Errorf("chat defaults: got %+v", cfg.Chat)
	}
	if cfg.Chat.Stop != nil {
		t.Errorf("chat.stop: got %v, want nil", cfg.Chat.Stop)
	}
	if cfg.Providers.LLM.Model != "llama3-8b-8192" {
		t.Errorf("llm model: got %q", cfg.Providers.LLM.Model)
	}
	if cfg.Features.Speech || cfg.Features.Reporting {
		t.Errorf("features should default to off: %+v", cfg.Features)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("EDUSYNC_TEST_GROQ_KEY", "gsk-from-env")
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: groq\n    api_key: ${EDUSYNC_TEST_GROQ_KEY}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "gsk-from-env" {
		t.Errorf("api_key: got %q", cfg.Providers.LLM.APIKey)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: groq\nnpcs: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoadFromReader_EmptyRequiresLLM(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil || !strings.Contains(err.Error(), "providers.llm.name") {
		t.Fatalf("expected providers.llm.name error, got %v", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantErr: "log_level",
		},
		{
			name:    "temperature out of range",
			yaml:    "chat:\n  temperature: 3\n",
			wantErr: "chat.temperature",
		},
		{
			name:    "top_p out of range",
			yaml:    "chat:\n  top_p: 1.5\n",
			wantErr: "chat.top_p",
		},
		{
			name:    "negative max tokens",
			yaml:    "chat:\n  max_tokens: -1\n",
			wantErr: "chat.max_tokens",
		},
		{
			name:    "speech without stt",
			yaml:    "features:\n  speech: true\n",
			wantErr: "providers.stt",
		},
		{
			name:    "speed factor",
			yaml:    "voice:\n  speed_factor: 5.0\n",
			wantErr: "speed_factor",
		},
		{
			name:    "elevenlabs without voice",
			yaml:    "providers:\n  tts:\n    name: elevenlabs\n",
			wantErr: "voice.voice_id",
		},
		{
			name:    "fallback without name",
			yaml:    "providers:\n  llm_fallbacks:\n    - model: x\n",
			wantErr: "llm_fallbacks[0]",
		},
		{
			name:    "tls missing key",
			yaml:    "server:\n  tls:\n    cert_file: /tmp/cert.pem\n",
			wantErr: "server.tls",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := "providers:\n  llm:\n    name: groq\n"
			// Merge the llm block into a providers section when the case has one.
			if strings.HasPrefix(tc.yaml, "providers:\n") {
				body = "providers:\n  llm:\n    name: groq\n" + strings.TrimPrefix(tc.yaml, "providers:\n")
			} else {
				body += tc.yaml
			}
			_, err := config.LoadFromReader(strings.NewReader(body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error should mention %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	err := config.Validate(&config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Chat:   config.ChatConfig{Temperature: -1},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "providers.llm.name", "chat.temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: expected ErrProviderNotRegistered, got: %v", err)
	}
}

type stubLLM struct{ model string }

func (s *stubLLM) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}
func (s *stubLLM) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

type stubSTT struct{}

func (stubSTT) Transcribe(context.Context, stt.Segment) (types.Transcript, error) {
	return types.Transcript{}, nil
}

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, string, types.VoiceProfile) (*tts.Audio, error) {
	return &tts.Audio{}, nil
}
func (stubTTS) ListVoices(context.Context) ([]types.VoiceProfile, error) { return nil, nil }

func TestRegistry_RegisterAndCreate(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return &stubLLM{model: e.Model}, nil
	})
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return stubSTT{}, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return stubTTS{}, nil })

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p.(*stubLLM).model != "m1" {
		t.Errorf("entry not passed to factory")
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "stub"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterLLM("bad", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestLogLevel_Slog(t *testing.T) {
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := tc.in.Slog(); got != tc.want {
			t.Errorf("%q.Slog() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.STT.Name != "deepgram" {
		t.Errorf("stt name = %q", cfg.Providers.STT.Name)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: expected os.ErrNotExist, got %v", err)
	}
}
