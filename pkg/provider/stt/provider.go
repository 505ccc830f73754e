// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram or a local
// whisper.cpp server) and turns one recorded utterance into text. The learner
// records a clip in the browser and uploads it whole, so the interface is
// request/response: one Segment in, one Transcript out.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/types"
)

// Segment is a single recorded utterance submitted for recognition.
type Segment struct {
	// Clip is the utterance audio. Providers expect 16-bit PCM; mono at
	// 16 kHz is what every bundled provider is tuned for.
	Clip audio.Clip

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string selects the provider's configured default.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in seg. A Transcript with empty Text
	// and a nil error means the audio was received but nothing intelligible
	// was recognised. A non-nil error means the service could not be reached or
	// rejected the request.
	Transcribe(ctx context.Context, seg Segment) (types.Transcript, error)
}
