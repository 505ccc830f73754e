// Package deepgram implements stt.Provider on the Deepgram live-listen
// WebSocket API, one short-lived socket per uploaded clip.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// sendChunkBytes is the PCM slice size written per binary frame
	// (100 ms at 16 kHz mono).
	sendChunkBytes = 3200
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the rate clips are normalised to before streaming.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the WebSocket endpoint. Intended for tests and
// self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

var _ stt.Provider = (*Provider)(nil)

type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
}

func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the clip as linear16 frames over a fresh socket, sends
// CloseStream and joins every final result until Deepgram reports Metadata or
// closes the socket.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (types.Transcript, error) {
	clip := audio.Normalize(seg.Clip, audio.Format{SampleRate: p.sampleRate, Channels: 1})
	if len(clip.PCM) == 0 {
		return types.Transcript{}, nil
	}

	wsURL, err := p.buildURL(seg.Language)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var acc finals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return streamPCM(gctx, conn, clip.PCM) })
	g.Go(func() error { return acc.receive(gctx, conn) })
	if err := g.Wait(); err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")

	return acc.transcript(clip.Duration()), nil
}

func streamPCM(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for chunk := range slices.Chunk(pcm, sendChunkBytes) {
		if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("send CloseStream: %w", err)
	}
	return nil
}

// buildURL returns the listen URL. lang, when set, wins over the provider
// default.
func (p *Provider) buildURL(lang string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	if lang == "" {
		lang = p.language
	}
	q := u.Query()
	for k, v := range map[string]string{
		"model":           p.model,
		"language":        lang,
		"punctuate":       "true",
		"smart_format":    "true",
		"interim_results": "false",
		"encoding":        "linear16",
		"sample_rate":     strconv.Itoa(p.sampleRate),
		"channels":        "1",
	} {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
