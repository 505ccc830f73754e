package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/edusync/internal/conversation"
	"github.com/MrWong99/edusync/internal/exchange"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/internal/report"
	"github.com/MrWong99/edusync/internal/speech"
	"github.com/MrWong99/edusync/pkg/provider/llm"
)

// DefaultGreeting opens every new conversation.
const DefaultGreeting = "Hello! I'm Edusync's chatbot. I'm here to help you with your learning journey. How are you feeling today about your studies?"

// minReapInterval bounds how often the idle reaper wakes up.
const minReapInterval = time.Second

// ChatSettings are the per-conversation knobs applied to newly created
// sessions. Changing them does not affect running sessions.
type ChatSettings struct {
	Greeting          string
	Generation        exchange.Generation
	StrictAlternation bool
}

// ReportSettings configure report generation.
type ReportSettings struct {
	Title    string
	Preamble string
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// LLM is the completion provider shared by all sessions. Required.
	LLM llm.Provider

	// LLMName labels metrics and spans.
	LLMName string

	// Speech is the shared speech bridge. Nil disables the speech feature.
	Speech *speech.Bridge

	// Features are the capabilities offered to new sessions.
	Features Features

	Chat   ChatSettings
	Report ReportSettings

	// IdleTimeout discards sessions that have been inactive this long. Zero
	// disables expiry.
	IdleTimeout time.Duration

	Metrics *observe.Metrics

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Manager tracks the live sessions. All exported methods are safe for
// concurrent use.
type Manager struct {
	llm      llm.Provider
	llmName  string
	speech   *speech.Bridge
	features Features
	report   ReportSettings
	idle     time.Duration
	metrics  *observe.Metrics
	now      func() time.Time
	compiler *report.Compiler

	mu       sync.RWMutex
	chat     ChatSettings
	sessions map[string]*Session
}

// NewManager creates a Manager. The speech feature is only offered when a
// bridge is configured.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		llm:      cfg.LLM,
		llmName:  cmp.Or(cfg.LLMName, "llm"),
		speech:   cfg.Speech,
		features: cfg.Features,
		report:   cfg.Report,
		idle:     cfg.IdleTimeout,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		chat:     cfg.Chat,
		sessions: make(map[string]*Session),
	}
	if m.speech == nil {
		m.features.Speech = false
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.chat.Greeting == "" {
		m.chat.Greeting = DefaultGreeting
	}
	m.compiler = report.NewCompiler(report.WithCompilerClock(m.now))
	return m
}

// Features returns the capabilities offered to new sessions.
func (m *Manager) Features() Features { return m.features }

// SetChatSettings replaces the settings used for sessions created from now on.
func (m *Manager) SetChatSettings(cs ChatSettings) {
	if cs.Greeting == "" {
		cs.Greeting = DefaultGreeting
	}
	m.mu.Lock()
	m.chat = cs
	m.mu.Unlock()
}

// SetReportSettings replaces the report settings used for sessions created
// from now on.
func (m *Manager) SetReportSettings(rs ReportSettings) {
	m.mu.Lock()
	m.report = rs
	m.mu.Unlock()
}

// ChatSettings returns the settings applied to new sessions.
func (m *Manager) ChatSettings() ChatSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chat
}

// Create starts a new session seeded with the greeting. When want is non-nil
// the session gets only the requested capabilities that are also offered.
func (m *Manager) Create(ctx context.Context, want *Features) *Session {
	features := m.features
	if want != nil {
		features = features.intersect(*want)
	}

	m.mu.RLock()
	chat, rs := m.chat, m.report
	m.mu.RUnlock()

	var storeOpts []conversation.Option
	if chat.StrictAlternation {
		storeOpts = append(storeOpts, conversation.WithStrictAlternation())
	}
	storeOpts = append(storeOpts, conversation.WithClock(m.now))
	store := conversation.New(storeOpts...)
	store.Seed(chat.Greeting)

	ex := exchange.New(store, m.llm,
		exchange.WithGeneration(chat.Generation),
		exchange.WithMetrics(m.metrics),
		exchange.WithProviderName(m.llmName),
	)

	now := m.now()
	s := &Session{
		id:         uuid.NewString(),
		features:   features,
		greeting:   chat.Greeting,
		store:      store,
		exchange:   ex,
		speech:     m.speech,
		now:        m.now,
		createdAt:  now,
		lastActive: now,
	}
	if features.Reporting {
		s.report = report.NewService(ex,
			report.NewAssembler(ex, report.WithPreamble(rs.Preamble)),
			m.compiler,
			report.WithTitle(rs.Title),
			report.WithServiceMetrics(m.metrics),
		)
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.metrics.ActiveSessions.Add(ctx, 1)

	observe.Logger(ctx).Info("session created",
		"session_id", s.id,
		"speech", features.Speech,
		"reporting", features.Reporting,
	)
	return s
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// End discards the session. An in-flight exchange finishes against the
// detached session.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.metrics.ActiveSessions.Add(ctx, -1)
	observe.Logger(ctx).Info("session ended", "session_id", id)
	return nil
}

// List returns every live session ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()
	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return infos
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap runs the idle-expiry loop until ctx is cancelled. It returns
// immediately when no idle timeout is configured.
func (m *Manager) Reap(ctx context.Context) {
	if m.idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(m.idle/2, minReapInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ReapIdle(ctx); n > 0 {
				observe.Logger(ctx).Info("expired idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}

// ReapIdle discards every session idle for longer than the timeout and
// returns how many were removed. Busy sessions are never reaped.
func (m *Manager) ReapIdle(ctx context.Context) int {
	if m.idle <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleFor(now) > m.idle {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.metrics.ActiveSessions.Add(ctx, -1)
		observe.Logger(ctx).Debug("session expired", "session_id", id)
	}
	return len(expired)
}

// Close discards every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	n := len(m.sessions)
	clear(m.sessions)
	m.mu.Unlock()
	if n > 0 {
		m.metrics.ActiveSessions.Add(ctx, -int64(n))
	}
}
