package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied live.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChatChanged covers the chat and report sections. New settings apply to
	// sessions created after the reload.
	ChatChanged bool

	// RestartRequired lists the sections whose changes only take effect after
	// a restart (server, providers, features and voice).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !chatEqual(old.Chat, new.Chat) || old.Report != new.Report {
		d.ChatChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.SessionIdleTimeout != new.Server.SessionIdleTimeout ||
		old.Server.ShutdownTimeout != new.Server.ShutdownTimeout ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Features != new.Features {
		d.RestartRequired = append(d.RestartRequired, "features")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}

	return d
}

func chatEqual(a, b ChatConfig) bool {
	return a.Greeting == b.Greeting &&
		a.SystemPrompt == b.SystemPrompt &&
		a.Temperature == b.Temperature &&
		a.MaxTokens == b.MaxTokens &&
		a.TopP == b.TopP &&
		a.StrictAlternation == b.StrictAlternation &&
		slices.Equal(a.Stop, b.Stop)
}
