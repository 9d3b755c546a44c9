package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
)

func (s *Server) handleChatNew(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID      string `json:"userId"`
		Title       string `json:"title"`
		SessionType string `json:"sessionType"`
	}
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	chat, err := s.History.Create(r.Context(), in.UserID, strings.TrimSpace(in.Title), in.SessionType)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chat": chat})
}

func (s *Server) handleChatList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", history.DefaultListLimit)
	if err != nil {
		fail(w, r, err)
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		fail(w, r, err)
		return
	}
	chats, err := s.History.ListByUser(r.Context(), mux.Vars(r)["userId"], limit, skip)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chats": chats})
}

func (s *Server) handleChatGet(w http.ResponseWriter, r *http.Request) {
	chat, err := s.History.Get(r.Context(), mux.Vars(r)["chatId"], r.URL.Query().Get("userId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chat": chat})
}

func (s *Server) handleChatAddMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		UserID  string `json:"userId"`
	}
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	if in.Role == "" || strings.TrimSpace(in.Content) == "" {
		fail(w, r, fault.Invalid("content", "role and content are required"))
		return
	}
	res, err := s.History.AddMessage(r.Context(), mux.Vars(r)["chatId"], in.Role, in.Content, in.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*history.AddResult
	}{true, res})
}

func (s *Server) handleChatRename(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title  string `json:"title"`
		UserID string `json:"userId"`
	}
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.History.Rename(r.Context(), mux.Vars(r)["chatId"], in.Title, in.UserID); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "title": strings.TrimSpace(in.Title)})
}

func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.History.Delete(r.Context(), mux.Vars(r)["chatId"], r.URL.Query().Get("userId")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Chat deleted"})
}

func (s *Server) handleChatVoiceSave(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID              string            `json:"userId"`
		ConversationHistory []history.Message `json:"conversationHistory"`
		SessionMetadata     history.VoiceMeta `json:"sessionMetadata"`
	}
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	if in.UserID == "" || in.ConversationHistory == nil {
		fail(w, r, fault.Invalid("conversationHistory", "userId and conversationHistory are required"))
		return
	}
	chat, err := s.History.SaveVoiceConversation(r.Context(), in.UserID, in.ConversationHistory, in.SessionMetadata)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chat": chat})
}

func (s *Server) handleChatActive(w http.ResponseWriter, r *http.Request) {
	active, err := s.History.GetOrCreateActive(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*history.ActiveChat
	}{true, active})
}

func (s *Server) handleChatStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.History.Stats(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}
