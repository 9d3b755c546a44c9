// Package api exposes OrthoBot over HTTP.
//
// Every handler answers JSON. Validation failures are 400 with
// {"error": message}; unknown sessions and chats are 404. The main chat
// endpoints never fail because of a model or search provider: those
// failures are already folded into the reply by the orchestrator.
package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
	"github.com/bdobrica/OrthoBot/internal/orthobot/history"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
	"github.com/bdobrica/OrthoBot/internal/orthobot/metrics"
	"github.com/bdobrica/OrthoBot/internal/orthobot/orchestrator"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

//go:embed ask.schema.json
var askSchemaJSON string

var askSchema = jsonschema.MustCompileString("ask.schema.json", askSchemaJSON)

//go:embed share.schema.json
var shareSchemaJSON string

var shareSchema = jsonschema.MustCompileString("share.schema.json", shareSchemaJSON)

// Server holds the handler dependencies. Voice and History may be nil, in
// which case their routes are not registered.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Voice        *memory.VoiceService
	History      *history.Service
	Metrics      *metrics.Metrics
}

// Register mounts every route on r.
func (s *Server) Register(r *mux.Router) {
	r.Use(recoverMiddleware, traceMiddleware, logMiddleware)

	r.HandleFunc("/askAI", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/message", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/api/greeting", s.handleGreeting).Methods(http.MethodPost)

	r.HandleFunc("/api/conversation/{userId}/stats", s.handleConversationStats).Methods(http.MethodGet)
	r.HandleFunc("/api/conversation/{userId}", s.handleConversation).Methods(http.MethodGet)
	r.HandleFunc("/api/conversation/{userId}", s.handleClearConversation).Methods(http.MethodDelete)

	if s.Voice != nil {
		r.HandleFunc("/api/voice/session/start", s.handleVoiceStart).Methods(http.MethodPost)
		r.HandleFunc("/api/voice/session/end", s.handleVoiceEnd).Methods(http.MethodPost)
		r.HandleFunc("/api/voice/session/history", s.handleVoiceHistory).Methods(http.MethodPost)
		r.HandleFunc("/api/voice/session/{sessionId}", s.handleVoiceInfo).Methods(http.MethodGet)
		r.HandleFunc("/api/voice/sessions/{userId}", s.handleVoiceList).Methods(http.MethodGet)
		r.HandleFunc("/api/voice/cleanup", s.handleVoiceCleanup).Methods(http.MethodPost)
	}

	if s.History != nil {
		r.HandleFunc("/api/chat/new", s.handleChatNew).Methods(http.MethodPost)
		r.HandleFunc("/api/chat/voice/save", s.handleChatVoiceSave).Methods(http.MethodPost)
		r.HandleFunc("/api/chat/history/{userId}", s.handleChatList).Methods(http.MethodGet)
		r.HandleFunc("/api/chat/active/{userId}", s.handleChatActive).Methods(http.MethodGet)
		r.HandleFunc("/api/chat/stats/{userId}", s.handleChatStats).Methods(http.MethodGet)
		r.HandleFunc("/api/chat/{chatId}/message", s.handleChatAddMessage).Methods(http.MethodPost)
		r.HandleFunc("/api/chat/{chatId}/title", s.handleChatRename).Methods(http.MethodPut)
		r.HandleFunc("/api/chat/{chatId}", s.handleChatGet).Methods(http.MethodGet)
		r.HandleFunc("/api/chat/{chatId}", s.handleChatDelete).Methods(http.MethodDelete)

		r.HandleFunc("/api/share/chat", s.handleShareCreate).Methods(http.MethodPost)
		r.HandleFunc("/api/share/{shareId}", s.handleShareGet).Methods(http.MethodGet)
	}
}

// Router returns a fresh router with every route mounted.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

// decode reads a JSON body into dst. When schema is set the raw document is
// validated first.
func decode(r *http.Request, dst any, schema *jsonschema.Schema) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fault.Invalid("body", "could not read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if schema != nil {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return fault.Invalid("body", "invalid JSON body")
		}
		if err := schema.Validate(doc); err != nil {
			return fault.Invalid("body", fmt.Sprintf("invalid request: %v", err))
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fault.Invalid("body", "invalid JSON body")
	}
	return nil
}
