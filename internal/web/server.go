// Package web serves the chat widget and its JSON API.
//
// Routes:
//
//	GET    /                                    chat widget
//	GET    /api/sessions                        list live sessions
//	POST   /api/sessions                        create a session
//	GET    /api/sessions/{id}                   session history
//	DELETE /api/sessions/{id}                   end a session
//	POST   /api/sessions/{id}/reset             clear and re-greet
//	POST   /api/sessions/{id}/messages          one text exchange
//	POST   /api/sessions/{id}/messages/stream   one text exchange as server-sent events
//	POST   /api/sessions/{id}/speech            spoken exchange
//	POST   /api/sessions/{id}/synthesize        text to audio
//	POST   /api/sessions/{id}/report            PDF learning analysis
//	GET    /api/voices                          synthesiser voices
//	GET    /healthz, /readyz, /metrics
package web

import (
	"net/http"

	"github.com/MrWong99/edusync/internal/health"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/internal/session"
	"github.com/MrWong99/edusync/internal/speech"
)

// defaultMaxAudioBytes caps uploaded speech clips (about five minutes of
// 16 kHz mono PCM).
const defaultMaxAudioBytes = 10 << 20

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

// Config holds the dependencies of a [Server].
type Config struct {
	// Sessions is required.
	Sessions *session.Manager

	// Speech backs /api/voices. Nil disables the route's data.
	Speech *speech.Bridge

	// Health provides /healthz and /readyz. Optional.
	Health *health.Handler

	// MetricsHandler serves /metrics. Optional.
	MetricsHandler http.Handler

	// Metrics is used by the request middleware. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MaxAudioBytes caps speech uploads. Zero selects a default.
	MaxAudioBytes int64
}

// Server is the HTTP front end.
type Server struct {
	sessions      *session.Manager
	speech        *speech.Bridge
	health        *health.Handler
	metricsH      http.Handler
	metrics       *observe.Metrics
	maxAudioBytes int64
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		sessions:      cfg.Sessions,
		speech:        cfg.Speech,
		health:        cfg.Health,
		metricsH:      cfg.MetricsHandler,
		metrics:       cfg.Metrics,
		maxAudioBytes: cfg.MaxAudioBytes,
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.maxAudioBytes <= 0 {
		s.maxAudioBytes = defaultMaxAudioBytes
	}
	return s
}

// Handler returns the fully wired handler, wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleWidget)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("POST /api/sessions/{id}/messages/stream", s.handleMessageStream)
	mux.HandleFunc("POST /api/sessions/{id}/speech", s.handleSpeech)
	mux.HandleFunc("POST /api/sessions/{id}/synthesize", s.handleSynthesize)
	mux.HandleFunc("POST /api/sessions/{id}/report", s.handleReport)
	mux.HandleFunc("GET /api/voices", s.handleVoices)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.metricsH)
	}

	return observe.Middleware(s.metrics)(mux)
}
