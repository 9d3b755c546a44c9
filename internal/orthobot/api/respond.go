package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/observability"
)

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps err onto a status code. Validation messages are returned
// verbatim; anything unexpected is logged and answered with a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := fault.AsValidation(err); ok {
		writeError(w, http.StatusBadRequest, v.Message)
		return
	}
	switch {
	case errors.Is(err, memory.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, history.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, history.ErrShareNotFound):
		writeError(w, http.StatusNotFound, "Shared chat not found or expired")
	default:
		observability.WithTrace(r.Context()).Error("api: request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
