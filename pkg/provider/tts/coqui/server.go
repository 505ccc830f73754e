package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"

	"github.com/MrWong99/edusync/pkg/types"
)

const (
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
)

// serverAPI hides the differences between the two server flavours.
type serverAPI interface {
	checkVoice(types.VoiceProfile) error
	synthesisRequest(ctx context.Context, base, sentence string, voice types.VoiceProfile, lang string) (*http.Request, error)
	voices(ctx context.Context, p *Provider) ([]types.VoiceProfile, error)
}

// getJSON decodes the JSON body of GET endpoint into v.
func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	body, err := p.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func voice(id string, meta map[string]string) types.VoiceProfile {
	return types.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: meta}
}

// standardAPI is the stock tts-server.
type standardAPI struct{}

// detailsResponse is the body of GET /details. Speakers is empty for
// single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Single-speaker models need no voice.
func (standardAPI) checkVoice(types.VoiceProfile) error { return nil }

func (standardAPI) synthesisRequest(ctx context.Context, base, sentence string, v types.VoiceProfile, lang string) (*http.Request, error) {
	q := url.Values{"text": {sentence}}
	if v.ID != "" {
		q.Set("speaker_id", v.ID)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")
	return req, nil
}

// voices lists the speakers of a multi-speaker model, or the model itself
// as the only voice.
func (standardAPI) voices(ctx context.Context, p *Provider) ([]types.VoiceProfile, error) {
	var d detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &d); err != nil {
		return nil, err
	}
	if len(d.Speakers) == 0 {
		name := d.ModelName
		if name == "" {
			name = "default"
		}
		return []types.VoiceProfile{voice(name, map[string]string{"type": "single-speaker", "model_name": name})}, nil
	}
	out := make([]types.VoiceProfile, 0, len(d.Speakers))
	for _, s := range slices.Sorted(slices.Values(d.Speakers)) {
		out = append(out, voice(s, map[string]string{"type": "speaker", "model_name": d.ModelName}))
	}
	return out, nil
}

// xttsAPI is the XTTS v2 API server.
type xttsAPI struct{}

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (xttsAPI) checkVoice(v types.VoiceProfile) error {
	if v.ID == "" {
		return errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	return nil
}

func (xttsAPI) synthesisRequest(ctx context.Context, base, sentence string, v types.VoiceProfile, lang string) (*http.Request, error) {
	body, err := json.Marshal(xttsRequest{Text: sentence, SpeakerWav: v.ID, Language: lang})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	return req, nil
}

// voices lists the studio speakers. Only the keys of the response matter.
func (xttsAPI) voices(ctx context.Context, p *Provider) ([]types.VoiceProfile, error) {
	var speakers map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &speakers); err != nil {
		return nil, err
	}
	out := make([]types.VoiceProfile, 0, len(speakers))
	for _, name := range slices.Sorted(maps.Keys(speakers)) {
		out = append(out, voice(name, map[string]string{"type": "studio"}))
	}
	return out, nil
}
