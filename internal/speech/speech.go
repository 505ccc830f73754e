// Package speech bridges conversations to the speech providers.
//
// Recognition has three outcomes: recognised text, [ErrNotUnderstood] when
// the audio held nothing usable, or a [*ServiceError] when the recogniser
// itself failed. Neither path touches a conversation; the caller decides
// whether to submit the text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/provider/tts"
	"github.com/MrWong99/edusync/pkg/types"
)

// User-facing messages for the two recognition failures.
const (
	MsgNotUnderstood = "Sorry, I could not understand the audio."
	MsgServiceError  = "Sorry, there was an error with the speech recognition service."
)

// defaultSilenceRMS matches the whisper provider's near-silence level.
const defaultSilenceRMS = 300.0

// recognitionFormat is what every bundled recogniser is tuned for.
var recognitionFormat = audio.Format{SampleRate: 16000, Channels: 1}

var (
	// ErrNotUnderstood means the audio was received but no text could be
	// recognised from it.
	ErrNotUnderstood = errors.New("speech: not understood")

	// ErrEmptyText is returned by Synthesize for blank text.
	ErrEmptyText = errors.New("speech: empty text")

	// ErrUnavailable is returned when the required provider is not configured.
	ErrUnavailable = errors.New("speech: provider not configured")
)

// ServiceError reports a recogniser failure. Detail is safe to log but not
// meant for end users; use [MsgServiceError] for them.
type ServiceError struct {
	Detail string
	Err    error
}

func (e *ServiceError) Error() string {
	return "speech: recognition service error: " + e.Detail
}

func (e *ServiceError) Unwrap() error { return e.Err }

// UserMessage returns the message to show a learner for a recognition error,
// or "" when err is not one of the recognition outcomes.
func UserMessage(err error) string {
	var se *ServiceError
	switch {
	case errors.Is(err, ErrNotUnderstood):
		return MsgNotUnderstood
	case errors.As(err, &se):
		return MsgServiceError
	}
	return ""
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithVoice sets the voice used for synthesis.
func WithVoice(v types.VoiceProfile) Option {
	return func(b *Bridge) {
		b.voice = v
	}
}

// WithSilenceThreshold sets the RMS level below which a clip is treated as
// silence and never sent to the recogniser. Zero disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(b *Bridge) {
		b.silenceRMS = rms
	}
}

// WithLanguage sets the default recognition language for segments that do
// not carry one.
func WithLanguage(lang string) Option {
	return func(b *Bridge) {
		b.language = lang
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithProviderNames sets the labels used on metrics.
func WithProviderNames(sttName, ttsName string) Option {
	return func(b *Bridge) {
		b.sttName = sttName
		b.ttsName = ttsName
	}
}

// Bridge converts between audio and text. It is safe for concurrent use.
type Bridge struct {
	stt        stt.Provider
	tts        tts.Provider
	voice      types.VoiceProfile
	silenceRMS float64
	language   string
	metrics    *observe.Metrics
	sttName    string
	ttsName    string
}

// New creates a Bridge. Either provider may be nil, in which case the
// matching operation returns [ErrUnavailable].
func New(recognizer stt.Provider, synthesizer tts.Provider, opts ...Option) *Bridge {
	b := &Bridge{
		stt:        recognizer,
		tts:        synthesizer,
		silenceRMS: defaultSilenceRMS,
		sttName:    "stt",
		ttsName:    "tts",
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Recognize transcribes seg. The clip is normalised to 16 kHz mono first.
// Empty or silent clips return [ErrNotUnderstood] without a provider call.
// Cancellation of ctx is returned as-is.
func (b *Bridge) Recognize(ctx context.Context, seg stt.Segment) (string, error) {
	if b.stt == nil {
		return "", ErrUnavailable
	}
	ctx, span := observe.StartSpan(ctx, "speech.recognize",
		trace.WithAttributes(attribute.String("stt.provider", b.sttName)),
	)
	defer span.End()
	log := observe.Logger(ctx)

	if len(seg.Clip.PCM) == 0 {
		return "", ErrNotUnderstood
	}
	seg.Clip = audio.Normalize(seg.Clip, recognitionFormat)
	if seg.Language == "" {
		seg.Language = b.language
	}
	if b.silenceRMS > 0 && seg.Clip.RMS() < b.silenceRMS {
		log.Debug("clip below silence threshold", "rms", seg.Clip.RMS(), "duration", seg.Clip.Duration())
		return "", ErrNotUnderstood
	}

	start := time.Now()
	tr, err := b.stt.Transcribe(ctx, seg)
	b.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		b.metrics.RecordProviderRequest(ctx, b.sttName, "stt", "error")
		b.metrics.RecordProviderError(ctx, b.sttName, "stt")
		observe.FailSpan(span, err, "recognition failed")
		log.Warn("speech recognition failed", "provider", b.sttName, "error", err)
		return "", &ServiceError{Detail: err.Error(), Err: err}
	}
	b.metrics.RecordProviderRequest(ctx, b.sttName, "stt", "ok")

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", ErrNotUnderstood
	}
	span.SetAttributes(attribute.Float64("stt.confidence", tr.Confidence))
	return text, nil
}

// Synthesize renders text with the configured voice.
func (b *Bridge) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	if b.tts == nil {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ctx, span := observe.StartSpan(ctx, "speech.synthesize",
		trace.WithAttributes(attribute.String("tts.provider", b.ttsName)),
	)
	defer span.End()

	start := time.Now()
	out, err := b.tts.Synthesize(ctx, text, b.voice)
	b.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		b.metrics.RecordProviderRequest(ctx, b.ttsName, "tts", "error")
		b.metrics.RecordProviderError(ctx, b.ttsName, "tts")
		observe.FailSpan(span, err, "synthesis failed")
		observe.Logger(ctx).Warn("speech synthesis failed", "provider", b.ttsName, "error", err)
		return nil, fmt.Errorf("speech: synthesize: %w", err)
	}
	b.metrics.RecordProviderRequest(ctx, b.ttsName, "tts", "ok")
	return out, nil
}

// Voices lists the voices offered by the synthesiser.
func (b *Bridge) Voices(ctx context.Context) ([]types.VoiceProfile, error) {
	if b.tts == nil {
		return nil, ErrUnavailable
	}
	v, err := b.tts.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech: list voices: %w", err)
	}
	return v, nil
}

// CanRecognize reports whether a recogniser is configured.
func (b *Bridge) CanRecognize() bool { return b.stt != nil }

// CanSynthesize reports whether a synthesiser is configured.
func (b *Bridge) CanSynthesize() bool { return b.tts != nil }
