package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/edusync/pkg/provider/stt"
	sttmock "github.com/MrWong99/edusync/pkg/provider/stt/mock"
	"github.com/MrWong99/edusync/pkg/types"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Transcript: types.Transcript{Text: "hello"}}
	secondary := &sttmock.Provider{Transcript: types.Transcript{Text: "other"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Segment{Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello" {
		t.Errorf("Text = %q, want hello", tr.Text)
	}
	calls := primary.Calls()
	if len(calls) != 1 || calls[0].Segment.Language != "en" {
		t.Errorf("primary calls = %+v, want one call with the segment", calls)
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("whisper down")}
	secondary := &sttmock.Provider{Transcript: types.Transcript{Text: "from deepgram"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Segment{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "from deepgram" {
		t.Errorf("Text = %q, want from deepgram", tr.Text)
	}
}

func TestSTTFallback_EmptyTranscriptIsNotFailure(t *testing.T) {
	primary := &sttmock.Provider{}
	secondary := &sttmock.Provider{Transcript: types.Transcript{Text: "guess"}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Segment{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty (not understood)", tr.Text)
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("down")}
	secondary := &sttmock.Provider{Err: errors.New("also down")}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", secondary)

	_, err := fb.Transcribe(context.Background(), stt.Segment{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
