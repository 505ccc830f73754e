// Package config provides the configuration schema, loader, and provider registry
// for the Edusync chat server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Edusync server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto a [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 150
	DefaultTopP               = 0.9
	DefaultLLMModel           = "llama3-8b-8192"
	DefaultReportTitle        = "Learning Analysis"
)

// Config is the root configuration structure for Edusync.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Chat      ChatConfig      `yaml:"chat"`
	Features  FeaturesConfig  `yaml:"features"`
	Voice     VoiceConfig     `yaml:"voice"`
	Report    ReportConfig    `yaml:"report"`
}

// ServerConfig holds network, logging and session lifetime settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// SessionIdleTimeout discards chat sessions that saw no activity for this
	// long. A negative value disables expiry.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the provider implementation for each stage. Each
// entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary LLM fails to start a
	// stream.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment at load time.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "llama3-8b-8192", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ChatConfig holds the conversation defaults applied to new sessions.
type ChatConfig struct {
	// Greeting is the assistant's opening message. Empty selects the built-in
	// greeting.
	Greeting string `yaml:"greeting"`

	// SystemPrompt is an optional instruction sent before the history. It is
	// not stored in the conversation.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature in [0, 2]. Zero selects [DefaultTemperature].
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps each reply. Zero selects [DefaultMaxTokens].
	MaxTokens int `yaml:"max_tokens"`

	// TopP in (0, 1]. Zero selects [DefaultTopP].
	TopP float64 `yaml:"top_p"`

	// Stop lists optional stop sequences.
	Stop []string `yaml:"stop"`

	// StrictAlternation rejects a user message while the previous user
	// message is still unanswered.
	StrictAlternation bool `yaml:"strict_alternation"`
}

// FeaturesConfig toggles the optional capabilities.
type FeaturesConfig struct {
	Speech    bool `yaml:"speech"`
	Reporting bool `yaml:"reporting"`
}

// VoiceConfig specifies the synthesis voice and recognition language.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Name is a display name for the voice.
	Name string `yaml:"name"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`

	// Language is the BCP-47 recognition language (e.g., "en-US").
	Language string `yaml:"language"`
}

// ReportConfig configures the PDF learning analysis.
type ReportConfig struct {
	// Title printed on the report.
	Title string `yaml:"title"`

	// Preamble replaces the built-in analysis instruction.
	Preamble string `yaml:"preamble"`
}

// ApplyDefaults fills zero values with the documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.SessionIdleTimeout == 0 {
		cfg.Server.SessionIdleTimeout = DefaultSessionIdleTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = DefaultTemperature
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = DefaultMaxTokens
	}
	if cfg.Chat.TopP == 0 {
		cfg.Chat.TopP = DefaultTopP
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultLLMModel
	}
	if cfg.Report.Title == "" {
		cfg.Report.Title = DefaultReportTitle
	}
}
