package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/edusync/internal/conversation"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/internal/session"
	"github.com/MrWong99/edusync/pkg/audio"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/types"
)

// sessionResponse describes one session and its transcript.
type sessionResponse struct {
	ID       string              `json:"id"`
	Features session.Features    `json:"features"`
	History  []conversation.Turn `json:"history"`
}

type createRequest struct {
	Features *session.Features `json:"features,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply   string              `json:"reply"`
	History []conversation.Turn `json:"history"`
}

type speechResponse struct {
	Transcript  string              `json:"transcript"`
	Reply       string              `json:"reply"`
	AudioBase64 string              `json:"audio_base64,omitempty"`
	AudioMIME   string              `json:"audio_mime,omitempty"`
	History     []conversation.Turn `json:"history"`
}

type voicesResponse struct {
	Voices []types.VoiceProfile `json:"voices"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{ID: sess.ID(), Features: sess.Features(), History: sess.History()}
}

// lookup resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	sess := s.sessions.Create(r.Context(), req.Features)
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleMessage runs one exchange. The text is trimmed before it is
// submitted.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req textRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	reply, err := sess.Submit(r.Context(), strings.TrimSpace(req.Text))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Reply: reply, History: sess.History()})
}

// handleSpeech recognises the uploaded clip, submits the transcript and
// returns the reply with synthesised audio.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !sess.Features().Speech {
		writeError(w, r, session.ErrFeatureDisabled)
		return
	}
	clip, err := readClip(http.MaxBytesReader(w, r.Body, s.maxAudioBytes), r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	res, err := sess.Speak(r.Context(), stt.Segment{Clip: clip, Language: r.URL.Query().Get("language")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := speechResponse{Transcript: res.Transcript, Reply: res.Reply, History: sess.History()}
	if res.Audio != nil {
		out.AudioBase64 = base64.StdEncoding.EncodeToString(res.Audio.Data)
		out.AudioMIME = res.Audio.MIMEType
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req textRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	out, err := sess.Synthesize(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	_, _ = w.Write(out.Data)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	doc, err := sess.Report(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	_, _ = w.Write(doc.Data)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil || !s.sessions.Features().Speech || !s.speech.CanSynthesize() {
		writeError(w, r, session.ErrFeatureDisabled)
		return
	}
	voices, err := s.speech.Voices(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Warn("listing voices failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, voicesResponse{Voices: voices})
}

// readClip decodes an uploaded clip. WAV files carry their own format; raw
// PCM (audio/pcm) takes sample_rate and channels from the media type
// parameters or the query string, defaulting to 16 kHz mono.
func readClip(body io.Reader, r *http.Request) (audio.Clip, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return audio.Clip{}, errors.New("empty audio body")
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("invalid content type: %w", err)
	}
	switch mediaType {
	case "audio/wav", "audio/wave", "audio/x-wav":
		clip, err := audio.DecodeWAV(data)
		if err != nil {
			return audio.Clip{}, err
		}
		return clip, nil
	case "audio/pcm":
		q := r.URL.Query()
		rate, err := intParam(params["rate"], q.Get("sample_rate"), 16000)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("sample rate: %w", err)
		}
		channels, err := intParam(params["channels"], q.Get("channels"), 1)
		if err != nil || channels > 2 {
			return audio.Clip{}, fmt.Errorf("channels must be 1 or 2")
		}
		return audio.Clip{PCM: data, SampleRate: rate, Channels: channels}, nil
	}
	return audio.Clip{}, fmt.Errorf("unsupported content type %q", mediaType)
}

// intParam returns the first non-empty of a, b as a positive int, or def.
func intParam(a, b string, def int) (int, error) {
	v := a
	if v == "" {
		v = b
	}
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid value %q", v)
	}
	return n, nil
}
