// Package app wires all Edusync subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// drains and tears everything down in order.
//
// For testing, inject mock providers through [Providers] and override the
// metrics plumbing via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/edusync/internal/config"
	"github.com/MrWong99/edusync/internal/exchange"
	"github.com/MrWong99/edusync/internal/health"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/internal/session"
	"github.com/MrWong99/edusync/internal/speech"
	"github.com/MrWong99/edusync/internal/web"
	"github.com/MrWong99/edusync/pkg/types"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	listener       net.Listener
	watcher        *config.Watcher

	// Subsystems, initialised in New and torn down in Shutdown.
	speech   *speech.Bridge
	sessions *session.Manager
	health   *health.Handler
	server   *web.Server
	http     *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics overrides the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler overrides the /metrics handler. Defaults to
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel hands the App the level variable behind the process logger so
// that config reloads can change verbosity live.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithListener makes Run serve on ln instead of listening on
// cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithWatcher makes Run poll the config file and apply accepted edits via
// [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via [BuildProviders]).
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errNoLLM
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Speech bridge ─────────────────────────────────────────────────
	if providers.STT != nil || providers.TTS != nil {
		a.speech = speech.New(providers.STT, providers.TTS,
			speech.WithVoice(voiceProfile(cfg)),
			speech.WithLanguage(cfg.Voice.Language),
			speech.WithMetrics(a.metrics),
			speech.WithProviderNames(providers.STTName, providers.TTSName),
		)
	}

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.sessions = session.NewManager(session.ManagerConfig{
		LLM:     providers.LLM,
		LLMName: providers.LLMName,
		Speech:  a.speech,
		Features: session.Features{
			Speech:    cfg.Features.Speech,
			Reporting: cfg.Features.Reporting,
		},
		Chat:        chatSettings(cfg),
		Report:      reportSettings(cfg),
		IdleTimeout: max(cfg.Server.SessionIdleTimeout, 0),
		Metrics:     a.metrics,
	})

	// ── 3. Health ────────────────────────────────────────────────────────
	checkers := []health.Checker{health.Configured("llm", providers.LLM)}
	if cfg.Features.Speech {
		checkers = append(checkers, health.Configured("stt", providers.STT))
	}
	a.health = health.New(checkers...)

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	a.server = web.New(web.Config{
		Sessions:       a.sessions,
		Speech:         a.speech,
		Health:         a.health,
		MetricsHandler: a.metricsHandler,
		Metrics:        a.metrics,
	})
	a.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.http.Handler }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, expires idle sessions and, when a watcher is set, applies
// config edits until ctx is cancelled. It then shuts down within
// cfg.Server.ShutdownTimeout. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.http.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.http.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		a.sessions.Reap(gctx)
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx, a.ApplyConfig)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	slog.Info("app running",
		"addr", ln.Addr().String(),
		"speech", a.sessions.Features().Speech,
		"reporting", a.sessions.Features().Reporting,
	)
	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies a reloaded configuration. The log level changes
// immediately and chat settings apply to sessions created afterwards.
// Everything else needs a restart and is only logged.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ChatChanged {
		a.sessions.SetChatSettings(chatSettings(updated))
		a.sessions.SetReportSettings(reportSettings(updated))
		slog.Info("chat settings reloaded; applies to new sessions")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown marks the server as draining, stops accepting requests, waits for
// in-flight ones and discards all sessions. It respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len())
		a.health.SetDraining(true)

		if err := a.http.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}
		a.sessions.Close(ctx)

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func chatSettings(cfg *config.Config) session.ChatSettings {
	return session.ChatSettings{
		Greeting: cfg.Chat.Greeting,
		Generation: exchange.Generation{
			Temperature:  cfg.Chat.Temperature,
			MaxTokens:    cfg.Chat.MaxTokens,
			TopP:         cfg.Chat.TopP,
			Stop:         cfg.Chat.Stop,
			SystemPrompt: cfg.Chat.SystemPrompt,
		},
		StrictAlternation: cfg.Chat.StrictAlternation,
	}
}

func reportSettings(cfg *config.Config) session.ReportSettings {
	return session.ReportSettings{Title: cfg.Report.Title, Preamble: cfg.Report.Preamble}
}

// voiceProfile converts a config.VoiceConfig to types.VoiceProfile.
func voiceProfile(cfg *config.Config) types.VoiceProfile {
	return types.VoiceProfile{
		ID:          cfg.Voice.VoiceID,
		Name:        cfg.Voice.Name,
		Provider:    cfg.Providers.TTS.Name,
		SpeedFactor: cfg.Voice.SpeedFactor,
	}
}
