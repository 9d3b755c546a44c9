package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
)

func (s *Server) handleShareCreate(w http.ResponseWriter, r *http.Request) {
	var in history.ShareRequest
	if err := decode(r, &in, shareSchema); err != nil {
		fail(w, r, err)
		return
	}
	shared, err := s.History.Share(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"shareId":  shared.ShareID,
		"shareUrl": shareURL(r, shared.ShareID),
	})
}

func (s *Server) handleShareGet(w http.ResponseWriter, r *http.Request) {
	shared, err := s.History.ViewShared(r.Context(), mux.Vars(r)["shareId"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": shared})
}

// shareURL points at the web client's viewer page on the host the request
// came in on.
func shareURL(r *http.Request, shareID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host + "/share/" + shareID
}
