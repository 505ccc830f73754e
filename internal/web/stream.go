package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// handleMessageStream runs one exchange and relays the reply as server-sent
// events while it is generated:
//
//	event: delta  data: {"text": "..."}
//	event: done   data: {"reply": "...", "history": [...]}
//	event: error  data: {"error": "...", "message": "...", "status": 502}
//
// Errors raised before the first fragment are answered with a plain JSON
// error and the matching status code instead.
func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req textRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	rc := http.NewResponseController(w)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}
	send := func(event string, v any) {
		start()
		b, _ := json.Marshal(v)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
		_ = rc.Flush()
	}

	reply, err := sess.SubmitStream(r.Context(), strings.TrimSpace(req.Text), func(delta string) {
		send("delta", map[string]string{"text": delta})
	})
	if err != nil {
		if !started {
			writeError(w, r, err)
			return
		}
		status, msg := classify(err)
		send("error", struct {
			errorResponse
			Status int `json:"status"`
		}{errorResponse{Error: err.Error(), Message: msg}, status})
		return
	}
	send("done", messageResponse{Reply: reply, History: sess.History()})
}
