package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// knownProviders lists the built-in provider names per kind. Other names
// only produce a warning since callers may register their own factories.
var knownProviders = map[string][]string{
	"llm": {"groq", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs", "coqui"},
}

// Load reads and validates the YAML file at path. A missing file yields an
// error matching [os.ErrNotExist].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader is [Load] for an already opened source.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// parse expands ${VAR} references, decodes strictly, fills defaults and
// validates. An empty document is decoded as the zero Config.
func parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// problems collects validation failures so that one pass reports all of them.
type problems []error

func (p *problems) failIf(cond bool, format string, args ...any) {
	if cond {
		*p = append(*p, fmt.Errorf(format, args...))
	}
}

// Validate reports every incoherent value in cfg as one joined error.
func Validate(cfg *Config) error {
	var p problems
	p.server(cfg.Server)
	p.providers(cfg.Providers)
	p.chat(cfg.Chat)
	p.features(cfg)
	p.voice(cfg)
	return errors.Join(p...)
}

func (p *problems) server(s ServerConfig) {
	p.failIf(s.LogLevel != "" && !s.LogLevel.IsValid(),
		"server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel)
	p.failIf(s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == ""),
		"server.tls requires both cert_file and key_file")
}

func (p *problems) providers(pc ProvidersConfig) {
	p.failIf(pc.LLM.Name == "", "providers.llm.name is required")
	warnUnknownProvider("llm", pc.LLM.Name)
	for i, fb := range pc.LLMFallbacks {
		p.failIf(fb.Name == "", "providers.llm_fallbacks[%d].name is required", i)
		warnUnknownProvider("llm", fb.Name)
	}
	warnUnknownProvider("stt", pc.STT.Name)
	warnUnknownProvider("tts", pc.TTS.Name)
}

func (p *problems) chat(c ChatConfig) {
	p.failIf(c.Temperature < 0 || c.Temperature > 2,
		"chat.temperature %.2f is out of range [0, 2]", c.Temperature)
	p.failIf(c.TopP < 0 || c.TopP > 1,
		"chat.top_p %.2f is out of range (0, 1]", c.TopP)
	p.failIf(c.MaxTokens < 0,
		"chat.max_tokens %d must not be negative", c.MaxTokens)
}

func (p *problems) features(cfg *Config) {
	if !cfg.Features.Speech {
		return
	}
	p.failIf(cfg.Providers.STT.Name == "", "features.speech requires providers.stt")
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("features.speech is enabled without providers.tts; replies will be text only")
	}
}

func (p *problems) voice(cfg *Config) {
	sf := cfg.Voice.SpeedFactor
	p.failIf(sf != 0 && (sf < 0.5 || sf > 2.0),
		"voice.speed_factor %.2f is out of range [0.5, 2.0]", sf)
	p.failIf(cfg.Providers.TTS.Name == "elevenlabs" && cfg.Voice.VoiceID == "",
		"voice.voice_id is required for the elevenlabs provider")
}

func warnUnknownProvider(kind, name string) {
	known := knownProviders[kind]
	if name == "" || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom registration",
		"kind", kind, "name", name, "known", known)
}
