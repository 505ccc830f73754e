package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"

	"github.com/MrWong99/edusync/pkg/types"
)

// inputMessage is a client frame. Only the opening frame carries the key and
// voice settings. An empty Text closes the input.
type inputMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// outputMessage is a server frame; Audio is base64 in the requested format.
type outputMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// inputFrames returns the opening frame, the text and the end-of-input
// marker. The opening text must be a single space and the body needs a
// trailing space or the server keeps buffering.
func (p *Provider) inputFrames(text string, voice types.VoiceProfile) []inputMessage {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		vs.Speed = voice.SpeedFactor
	}
	return []inputMessage{
		{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey},
		{Text: text + " "},
		{Text: ""},
	}
}

func send(ctx context.Context, conn *websocket.Conn, frames []inputMessage) error {
	for _, f := range frames {
		msg, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return err
		}
	}
	return nil
}

// collect concatenates decoded audio frames until isFinal or a normal close.
// Frames that are not JSON are skipped.
func collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var buf []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(buf) > 0 {
				return buf, nil
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		var out outputMessage
		if json.Unmarshal(msg, &out) != nil {
			continue
		}
		if out.Error != "" {
			return nil, fmt.Errorf("server error: %s: %s", out.Error, out.Message)
		}
		if out.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(out.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio frame: %w", err)
			}
			buf = append(buf, chunk...)
		}
		if out.IsFinal {
			break
		}
	}
	if len(buf) == 0 {
		return nil, errors.New("no audio received")
	}
	return buf, nil
}
