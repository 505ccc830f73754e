// Package elevenlabs implements tts.Provider on the ElevenLabs stream-input
// WebSocket API. Every reply opens a short-lived socket; the audio frames it
// returns are joined into a single file.
package elevenlabs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/tts"
	"github.com/MrWong99/edusync/pkg/types"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"
)

var _ tts.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model ID, e.g. "eleven_multilingual_v2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat selects the ElevenLabs output format. "pcm_<rate>" formats
// come back wrapped in a WAV container.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithBaseURLs points the provider at other WebSocket and REST roots.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	wsBase       string
	apiBase      string
	httpClient   *http.Client
}

func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		apiBase:      defaultAPIBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize sends text over a fresh socket and waits for the final frame or
// a normal close.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Audio, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if text = strings.TrimSpace(text); text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	if err := send(ctx, conn, p.inputFrames(text, voice)); err != nil {
		return nil, fmt.Errorf("elevenlabs: send: %w", err)
	}
	data, err := collect(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
	return packageAudio(data, p.outputFormat), nil
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.outputFormat}}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// codecMIME maps the codec prefix of an output format to its media type.
// Unknown codecs are treated as MP3, the API default.
var codecMIME = map[string]string{
	"mp3":  "audio/mpeg",
	"ulaw": "audio/basic",
	"opus": "audio/ogg",
}

// packageAudio labels data with the media type of format. Raw PCM is wrapped
// in a WAV header so browsers can play it.
func packageAudio(data []byte, format string) *tts.Audio {
	codec, rest, _ := strings.Cut(format, "_")
	if codec == "pcm" {
		rate, err := strconv.Atoi(rest)
		if err != nil {
			rate = 16000
		}
		clip := audio.Clip{PCM: data, SampleRate: rate, Channels: 1}
		return &tts.Audio{Data: audio.EncodeWAV(clip), MIMEType: audio.MIMEWAV, Duration: clip.Duration()}
	}
	mime, ok := codecMIME[codec]
	if !ok {
		mime = codecMIME["mp3"]
	}
	return &tts.Audio{Data: data, MIMEType: mime}
}
