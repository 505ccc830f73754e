// Package coqui speaks tutor replies through a self-hosted Coqui TTS server.
//
// Two server flavours are supported. [APIModeStandard] (the default) targets
// the stock tts-server image: GET /api/tts per utterance and GET /details for
// the speaker list. [APIModeXTTS] targets the XTTS v2 API server: POST
// /tts_to_audio/ with a JSON body and GET /studio_speakers.
//
// Neither server streams, so long replies are split into sentences that are
// synthesised concurrently and joined back into one mono WAV in order.
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/tts"
	"github.com/MrWong99/edusync/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxInFlight caps concurrent sentence requests against one server.
	maxInFlight = 4
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeXTTS     APIMode = "xtts"
	APIModeStandard APIMode = "standard"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code sent with every request. Default "en".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithTimeout bounds each HTTP request. Default 30s.
func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.httpClient.Timeout = d } }

// WithAPIMode picks the server flavour. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option { return func(p *Provider) { p.apiMode = mode } }

// WithOutputSampleRate resamples the joined reply to rate. By default the
// rate of the first sentence is kept.
func WithOutputSampleRate(rate int) Option { return func(p *Provider) { p.outputRate = rate } }

// Provider is a [tts.Provider] for one Coqui server. Safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int

	api serverAPI
}

// New returns a provider for the server at serverURL, for example
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard:
		p.api = standardAPI{}
	case APIModeXTTS:
		p.api = xttsAPI{}
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// Synthesize renders text as a single mono WAV. Sentences are requested with
// at most maxInFlight calls outstanding; the first failure cancels the rest
// and fails the call.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Audio, error) {
	if err := p.api.checkVoice(voice); err != nil {
		return nil, err
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, errors.New("coqui: text must not be empty")
	}

	clips := make([]audio.Clip, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for i, sentence := range sentences {
		g.Go(func() error {
			req, err := p.api.synthesisRequest(gctx, p.serverURL, sentence, voice, p.language)
			if err != nil {
				return fmt.Errorf("coqui: build request: %w", err)
			}
			body, err := p.do(req)
			if err != nil {
				return err
			}
			if clips[i], err = audio.DecodeWAV(body); err != nil {
				return fmt.Errorf("coqui: sentence %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p.join(clips), nil
}

// join concatenates clips after bringing each to a common mono format.
func (p *Provider) join(clips []audio.Clip) *tts.Audio {
	target := audio.Format{SampleRate: clips[0].SampleRate, Channels: 1}
	if p.outputRate > 0 {
		target.SampleRate = p.outputRate
	}
	out := audio.Clip{SampleRate: target.SampleRate, Channels: 1}
	for _, c := range clips {
		out.PCM = append(out.PCM, audio.Normalize(c, target).PCM...)
	}
	return &tts.Audio{Data: audio.EncodeWAV(out), MIMEType: audio.MIMEWAV, Duration: out.Duration()}
}

// ListVoices returns the server's speakers sorted by ID.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return p.api.voices(ctx, p)
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	op := req.Method + " " + req.URL.Path
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s returned status %d", op, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s: read body: %w", op, err)
	}
	return body, nil
}
