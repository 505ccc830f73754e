// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference) and submits each uploaded utterance as a batch inference
// request. Clips whose energy never rises above the silence threshold are
// answered locally with an empty transcript, so the server is not woken for
// a recording of room noise.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	transcript, err := p.Transcribe(ctx, stt.Segment{Clip: clip})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/types"
)

const (
	// defaultRMSThreshold is the 16-bit RMS below which a clip counts as
	// silence. Full scale is 32767.
	defaultRMSThreshold = 300.0

	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the one the
// server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the fallback language for segments that carry none.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the upload rate. Whisper models are trained on 16 kHz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithRMSThreshold moves the silence cutoff; zero uploads every clip.
func WithRMSThreshold(rms float64) Option {
	return func(p *Provider) { p.rmsThreshold = rms }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider talks to a whisper.cpp server over its REST API.
type Provider struct {
	serverURL    string
	model        string
	language     string
	sampleRate   int
	rmsThreshold float64
	httpClient   *http.Client
}

// New returns a Provider for the server at serverURL, e.g.
// "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     defaultLanguage,
		sampleRate:   defaultSampleRate,
		rmsThreshold: defaultRMSThreshold,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the clip as mono WAV at the configured rate. Empty or
// silent clips return an empty transcript without a request.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	clip := audio.Normalize(seg.Clip, audio.Format{SampleRate: p.sampleRate, Channels: 1})
	duration := clip.Duration()
	if len(clip.PCM) == 0 || (p.rmsThreshold > 0 && clip.RMS() < p.rmsThreshold) {
		return types.Transcript{Duration: duration}, nil
	}

	lang := seg.Language
	if lang == "" {
		lang = p.language
	}

	text, err := p.infer(ctx, clip, lang)
	if err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{Text: text, Duration: duration}, nil
}

// inferenceForm builds the multipart body for POST /inference. Fields with
// empty values are omitted so the server falls back to its own defaults.
func (p *Provider) inferenceForm(clip audio.Clip, lang string) (*bytes.Buffer, string, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio.EncodeWAV(clip)); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"language", whisperLanguage(lang)},
		{"model", p.model},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func (p *Provider) infer(ctx context.Context, clip audio.Clip, lang string) (string, error) {
	body, contentType, err := p.inferenceForm(clip, lang)
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return cleanTranscript(result.Text), nil
}

// whisperLanguage reduces a BCP-47 tag like "en-US" to the bare language code
// whisper.cpp expects.
func whisperLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

// cleanTranscript trims whitespace and drops the bracketed non-speech markers
// whisper emits for unintelligible audio (e.g., "[BLANK_AUDIO]", "(music)").
func cleanTranscript(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && ((s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '(' && s[len(s)-1] == ')')) {
		return ""
	}
	return s
}
