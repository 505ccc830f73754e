package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/edusync/internal/conversation"
	"github.com/MrWong99/edusync/internal/exchange"
	"github.com/MrWong99/edusync/internal/observe"
	"github.com/MrWong99/edusync/internal/report"
	"github.com/MrWong99/edusync/internal/session"
	"github.com/MrWong99/edusync/internal/speech"
)

// msgGenerationFailed is shown when the completion provider failed.
const msgGenerationFailed = "Sorry, I could not come up with a reply. Please try again."

// errorResponse is the JSON body of every error. Message, when set, is meant
// for the learner; Error is the technical detail.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// classify maps a domain error to an HTTP status and a learner-facing message.
func classify(err error) (int, string) {
	var se *speech.ServiceError
	switch {
	case errors.Is(err, exchange.ErrEmptyInput), errors.Is(err, speech.ErrEmptyText):
		return http.StatusBadRequest, "Please type a message first."
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "This conversation has ended. Please start a new one."
	case errors.Is(err, session.ErrFeatureDisabled):
		return http.StatusNotFound, ""
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "Please wait for the current reply."
	case errors.Is(err, conversation.ErrInvalidRoleSequence):
		return http.StatusConflict, "Please wait for the assistant to answer before sending another message."
	case errors.Is(err, speech.ErrNotUnderstood):
		return http.StatusUnprocessableEntity, speech.MsgNotUnderstood
	case errors.As(err, &se):
		return http.StatusServiceUnavailable, speech.MsgServiceError
	case errors.Is(err, speech.ErrUnavailable):
		return http.StatusServiceUnavailable, ""
	case errors.Is(err, report.ErrEmptyAnalysis):
		return http.StatusUnprocessableEntity, "The analysis came back empty. Please try again."
	case errors.Is(err, exchange.ErrGenerationFailed):
		return http.StatusBadGateway, msgGenerationFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ""
	}
	return http.StatusInternalServerError, ""
}

// writeError classifies err and writes it as JSON. Server-side failures are
// logged at error level, client errors at debug.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "route", r.Pattern, "status", status, "error", err)
	} else {
		log.Debug("request rejected", "route", r.Pattern, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Message: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// badRequest writes a 400 for malformed input that never reached the domain.
func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: detail})
}
