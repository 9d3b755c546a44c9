package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
)

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (in sessionRequest) validate() error {
	if strings.TrimSpace(in.SessionID) == "" {
		return fault.Invalid("sessionId", "sessionId is required")
	}
	return nil
}

func (s *Server) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID      string `json:"userId"`
		SessionType string `json:"sessionType"`
	}
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		fail(w, r, fault.Invalid("userId", "userId is required"))
		return
	}
	res, err := s.Voice.StartCall(r.Context(), in.UserID, in.SessionType)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*memory.StartResult
	}{true, res})
}

func (s *Server) handleVoiceEnd(w http.ResponseWriter, r *http.Request) {
	var in sessionRequest
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	if err := in.validate(); err != nil {
		fail(w, r, err)
		return
	}
	res, ok, err := s.Voice.EndCall(r.Context(), in.SessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.Metrics.VoiceCallEnded()
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*memory.EndResult
	}{true, res})
}

func (s *Server) handleVoiceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.Voice.Info(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": info})
}

func (s *Server) handleVoiceList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", memory.DefaultListLimit)
	if err != nil {
		fail(w, r, err)
		return
	}
	sessions, err := s.Voice.ListByUser(r.Context(), mux.Vars(r)["userId"], limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessions": sessions})
}

func (s *Server) handleVoiceHistory(w http.ResponseWriter, r *http.Request) {
	var in sessionRequest
	if err := decode(r, &in, nil); err != nil {
		fail(w, r, err)
		return
	}
	if err := in.validate(); err != nil {
		fail(w, r, err)
		return
	}
	vs, err := s.Voice.Session(r.Context(), in.SessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	transcript := vs.Transcript
	if transcript == nil {
		transcript = []memory.Turn{}
	}
	topics := vs.Context.PrimaryTopics
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"sessionId":           vs.SessionID,
		"conversationHistory": transcript,
		"primaryTopics":       topics,
		"patientCondition":    vs.Context.PatientCondition,
		"lastActiveAt":        vs.LastActiveAt,
		"createdAt":           vs.CreatedAt,
	})
}

func (s *Server) handleVoiceCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.Voice.CleanupExpired(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	s.Metrics.SweepRemoved("voice", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": n,
		"message":      fmt.Sprintf("Cleaned up %d expired sessions", n),
	})
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fault.Invalid(name, name+" must be a non-negative integer")
	}
	return n, nil
}
