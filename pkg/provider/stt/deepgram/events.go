package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/edusync/pkg/types"
)

const (
	eventResults  = "Results"
	eventMetadata = "Metadata"
)

// event is the envelope shared by all server messages.
type event struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func decodeEvent(msg []byte) (event, bool) {
	var ev event
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Type == "" {
		return event{}, false
	}
	return ev, true
}

// finals collects the text of final Results events in arrival order.
type finals struct {
	parts      []string
	confidence float64
}

// add records ev when it is a final result with non-blank text.
func (f *finals) add(ev event) bool {
	if ev.Type != eventResults || !ev.IsFinal || len(ev.Channel.Alternatives) == 0 {
		return false
	}
	alt := ev.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return false
	}
	f.parts = append(f.parts, text)
	f.confidence += alt.Confidence
	return true
}

// receive reads events until Metadata, which Deepgram sends last after
// CloseStream, or a normal close.
func (f *finals) receive(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		if ev.Type == eventMetadata {
			return nil
		}
		f.add(ev)
	}
}

// transcript joins the parts; Confidence is their mean.
func (f *finals) transcript(d time.Duration) types.Transcript {
	t := types.Transcript{Text: strings.Join(f.parts, " "), Duration: d}
	if n := len(f.parts); n > 0 {
		t.Confidence = f.confidence / float64(n)
	}
	return t
}
