package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
	"github.com/bdobrica/OrthoBot/internal/orthobot/orchestrator"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := decode(r, &req, askSchema); err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.Orchestrator.Handle(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Language string `json:"language"`
	}
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	lang := detect.Language(in.Language)
	if !lang.Valid() {
		lang = detect.English
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"greeting": orchestrator.Greeting(lang),
		"language": lang,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": s.Orchestrator.Tracker().History(userID),
	})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	s.Orchestrator.Tracker().Clear(mux.Vars(r)["userId"])
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Conversation history cleared",
	})
}

func (s *Server) handleConversationStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   s.Orchestrator.Tracker().Stats(mux.Vars(r)["userId"]),
	})
}
