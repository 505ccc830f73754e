// Package session owns the per-learner chat state.
//
// A [Session] bundles one conversation with its exchange manager and the
// optional speech and report capabilities. Mutating operations on a session
// are serialised by a non-blocking guard: a second call while one is in flight
// fails fast with [ErrBusy] instead of queueing. The [Manager] creates,
// looks up and expires sessions.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/edusync/internal/conversation"
	"github.com/MrWong99/edusync/internal/exchange"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/internal/report"
	"github.com/MrWong99/edusync/internal/speech"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/provider/tts"
)

var (
	// ErrBusy is returned when a mutating call arrives while another one is
	// still running on the same session.
	ErrBusy = errors.New("session: request already in progress")

	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session: not found")

	// ErrFeatureDisabled is returned when an operation needs a capability the
	// session was not created with.
	ErrFeatureDisabled = errors.New("session: feature disabled")
)

// Features are the optional capabilities of a session.
type Features struct {
	Speech    bool `json:"speech"`
	Reporting bool `json:"reporting"`
}

// intersect returns the capabilities enabled in both f and o.
func (f Features) intersect(o Features) Features {
	return Features{Speech: f.Speech && o.Speech, Reporting: f.Reporting && o.Reporting}
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID         string    `json:"id"`
	Features   Features  `json:"features"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Turns      int       `json:"turns"`
}

// SpeechResult is the outcome of a spoken exchange.
type SpeechResult struct {
	Transcript string
	Reply      string
	// Audio is nil when synthesis failed; the reply is still valid.
	Audio *tts.Audio
}

// Session is one learner's conversation. All methods are safe for concurrent
// use.
type Session struct {
	id       string
	features Features
	greeting string

	store    *conversation.Store
	exchange *exchange.Manager
	speech   *speech.Bridge
	report   *report.Service

	busy atomic.Bool
	now  func() time.Time

	mu         sync.Mutex
	createdAt  time.Time
	lastActive time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Features returns the session's capabilities.
func (s *Session) Features() Features { return s.features }

// History returns a copy of the conversation.
func (s *Session) History() []conversation.Turn {
	s.touch()
	return s.store.History()
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		Features:   s.features,
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
		Turns:      s.store.Len(),
	}
}

// Submit runs one text exchange.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	return s.SubmitStream(ctx, text, nil)
}

// SubmitStream runs one text exchange, passing every streamed fragment to
// onDelta as it arrives.
func (s *Session) SubmitStream(ctx context.Context, text string, onDelta func(string)) (string, error) {
	release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	return s.exchange.SubmitStream(observe.WithSession(ctx, s.id), text, onDelta)
}

// Speak recognises seg, submits the transcript and synthesises the reply.
// Recognition failures leave the conversation untouched. A synthesis failure
// after a successful exchange is logged and yields a result without audio.
func (s *Session) Speak(ctx context.Context, seg stt.Segment) (SpeechResult, error) {
	if !s.features.Speech {
		return SpeechResult{}, ErrFeatureDisabled
	}
	ctx = observe.WithSession(ctx, s.id)
	release, err := s.acquire()
	if err != nil {
		return SpeechResult{}, err
	}
	defer release()

	text, err := s.speech.Recognize(ctx, seg)
	if err != nil {
		return SpeechResult{}, err
	}
	res := SpeechResult{Transcript: text}

	res.Reply, err = s.exchange.Submit(ctx, text)
	if err != nil {
		return res, err
	}

	if s.speech.CanSynthesize() {
		res.Audio, err = s.speech.Synthesize(ctx, res.Reply)
		if err != nil {
			observe.Logger(ctx).Warn("reply synthesis failed, returning text only", "error", err)
		}
	}
	return res, nil
}

// Synthesize renders text as speech. It does not touch the conversation and
// is allowed while an exchange is running.
func (s *Session) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	if !s.features.Speech {
		return nil, ErrFeatureDisabled
	}
	s.touch()
	return s.speech.Synthesize(observe.WithSession(ctx, s.id), text)
}

// Report requests an analysis of the conversation and compiles it as PDF.
func (s *Session) Report(ctx context.Context) (*report.Document, error) {
	if !s.features.Reporting {
		return nil, ErrFeatureDisabled
	}
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.report.Generate(observe.WithSession(ctx, s.id))
}

// Reset clears the conversation and re-seeds the greeting.
func (s *Session) Reset() error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	s.store.Reset()
	s.store.Seed(s.greeting)
	return nil
}

// acquire takes the mutation guard without blocking.
func (s *Session) acquire() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	s.touch()
	return func() {
		s.touch()
		s.busy.Store(false)
	}, nil
}

// Busy reports whether a mutating call is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// idleFor returns how long the session has been inactive at now. A busy
// session is never idle.
func (s *Session) idleFor(now time.Time) time.Duration {
	if s.busy.Load() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}
