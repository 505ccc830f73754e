// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and renders one assistant reply into a playable audio file.
// The widget plays the file as soon as the reply arrives, so the interface is
// request/response rather than streaming.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"

	"github.com/MrWong99/edusync/pkg/types"
)

// Audio is a synthesised utterance ready to be sent to a browser.
type Audio struct {
	// Data is the encoded audio file (e.g., MP3 or WAV bytes).
	Data []byte

	// MIMEType is the media type of Data (e.g., "audio/mpeg", "audio/wav").
	MIMEType string

	// Duration is the playback length when the provider knows it. Zero means
	// unknown (compressed formats are not decoded to measure it).
	Duration time.Duration
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text in the given voice. Returns an error if the text
	// is empty, the voice is unavailable, or the service fails.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Audio, error)

	// ListVoices returns all voice profiles available from this provider. The list
	// reflects the provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
