// Package history persists chat conversations for the web and voice
// front-ends. Chats are soft-deleted and never purged by the service;
// shared snapshots expire after DefaultShareTTL.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

// ErrChatNotFound is returned when a chat does not exist, is deleted, or
// belongs to another user.
var ErrChatNotFound = errors.New("history: chat not found")

// Session types.
const (
	SessionTypeText  = "text_chat"
	SessionTypeVoice = "voice_call"
)

const (
	// MaxTitleLength bounds chat titles, in characters.
	MaxTitleLength = 200
	// DefaultListLimit is the page size of ListByUser.
	DefaultListLimit = 20

	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Message is one stored chat message.
type Message struct {
	MessageID string    `json:"messageId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata is denormalised chat information.
type Metadata struct {
	TotalMessages    int        `json:"totalMessages"`
	LastMessageAt    *time.Time `json:"lastMessageAt,omitempty"`
	DetectedLanguage string     `json:"detectedLanguage,omitempty"`
	PrimaryTopics    []string   `json:"primaryTopics,omitempty"`
	PatientCondition string     `json:"patientCondition,omitempty"`
}

// Chat is a full conversation.
type Chat struct {
	ChatID         string    `json:"chatId"`
	UserID         string    `json:"userId"`
	Title          string    `json:"title"`
	SessionType    string    `json:"sessionType"`
	IsVoiceSession bool      `json:"isVoiceSession"`
	Messages       []Message `json:"messages"`
	Metadata       Metadata  `json:"metadata"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Summary is one entry of a user's chat list.
type Summary struct {
	ChatID         string     `json:"chatId"`
	Title          string     `json:"title"`
	SessionType    string     `json:"sessionType"`
	IsVoiceSession bool       `json:"isVoiceSession"`
	TotalMessages  int        `json:"totalMessages"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Stats counts a user's live chats.
type Stats struct {
	TotalChats int        `json:"totalChats"`
	TextChats  int        `json:"textChats"`
	VoiceChats int        `json:"voiceChats"`
	LastChatAt *time.Time `json:"lastChatAt"`
}

// Service stores chats in the chats and chat_messages tables and shared
// snapshots in shared_chats.
type Service struct {
	db       *sql.DB
	now      func() time.Time
	shareTTL time.Duration

	mu     sync.Mutex
	active map[string]string // userID -> chatID
}

// New returns a Service over an already migrated database.
func New(db *sql.DB) *Service {
	return &Service{
		db:       db,
		now:      time.Now,
		shareTTL: DefaultShareTTL,
		active:   make(map[string]string),
	}
}

// Create opens a new chat. An empty title gets a timestamped default.
func (s *Service) Create(ctx context.Context, userID, title, sessionType string) (*Chat, error) {
	if userID == "" {
		return nil, fault.Invalid("userId", "userId is required")
	}
	if title == "" {
		title = DefaultTitle(s.now())
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if sessionType == "" {
		sessionType = SessionTypeText
	}

	now := s.now()
	chat := &Chat{
		ChatID:         uuid.NewString(),
		UserID:         userID,
		Title:          title,
		SessionType:    sessionType,
		IsVoiceSession: sessionType == SessionTypeVoice,
		Messages:       []Message{},
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.insertChat(ctx, s.db, chat); err != nil {
		return nil, err
	}
	slog.Info("history: chat created", "chat_id", chat.ChatID, "user_id", userID, "session_type", sessionType)
	return chat, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) insertChat(ctx context.Context, db execer, chat *Chat) error {
	meta, err := json.Marshal(chat.Metadata)
	if err != nil {
		return fault.Storage("chat create", err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO chats
		(chat_id, user_id, title, session_type, is_voice_session, metadata, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		chat.ChatID, chat.UserID, chat.Title, chat.SessionType, chat.IsVoiceSession,
		string(meta), formatTime(chat.CreatedAt), formatTime(chat.UpdatedAt))
	return fault.Storage("chat create", err)
}

// AddResult reports where a message was stored.
type AddResult struct {
	ChatID       string `json:"chatId"`
	MessageCount int    `json:"messageCount"`
}

// AddMessage appends a message. When the chat does not exist and userID is
// known, a new chat titled after the message is created instead.
func (s *Service) AddMessage(ctx context.Context, chatID, role, content, userID string) (*AddResult, error) {
	if err := validateRole(role); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fault.Invalid("content", "content is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Storage("chat add message", err)
	}
	defer tx.Rollback()

	var metaJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT metadata FROM chats WHERE chat_id = ? AND is_active = 1`, chatID).Scan(&metaJSON)
	var meta Metadata
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if userID == "" {
			return nil, ErrChatNotFound
		}
		now := s.now()
		chat := &Chat{
			ChatID:      uuid.NewString(),
			UserID:      userID,
			Title:       TitleFromMessage(content, role),
			SessionType: SessionTypeText,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.insertChat(ctx, tx, chat); err != nil {
			return nil, err
		}
		chatID = chat.ChatID
	case err != nil:
		return nil, fault.Storage("chat add message", err)
	default:
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fault.Storage("chat add message", err)
		}
	}

	now := s.now()
	seq := meta.TotalMessages + 1
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_messages
		(message_id, chat_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), chatID, seq, role, content, formatTime(now)); err != nil {
		return nil, fault.Storage("chat add message", err)
	}

	meta.TotalMessages = seq
	meta.LastMessageAt = &now
	if err := updateMetadata(ctx, tx, chatID, meta, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fault.Storage("chat add message", err)
	}
	return &AddResult{ChatID: chatID, MessageCount: seq}, nil
}

func updateMetadata(ctx context.Context, tx *sql.Tx, chatID string, meta Metadata, now time.Time) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fault.Storage("chat metadata", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE chats SET metadata = ?, updated_at = ? WHERE chat_id = ?`,
		string(b), formatTime(now), chatID)
	return fault.Storage("chat metadata", err)
}

// ListByUser returns the user's live chats, most recently updated first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, skip int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, title, session_type, is_voice_session,
			metadata, created_at, updated_at
		FROM chats WHERE user_id = ? AND is_active = 1
		ORDER BY updated_at DESC LIMIT ? OFFSET ?`, userID, limit, skip)
	if err != nil {
		return nil, fault.Storage("chat list", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum                  Summary
			meta                 Metadata
			metaJSON             string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&sum.ChatID, &sum.Title, &sum.SessionType, &sum.IsVoiceSession,
			&metaJSON, &createdAt, &updatedAt); err != nil {
			return nil, fault.Storage("chat list", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fault.Storage("chat list", err)
		}
		sum.TotalMessages = meta.TotalMessages
		sum.LastMessageAt = meta.LastMessageAt
		sum.CreatedAt = parseTime(createdAt)
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storage("chat list", err)
	}
	return out, nil
}

// Get returns a live chat with its messages. A non-empty userID restricts
// the lookup to that owner.
func (s *Service) Get(ctx context.Context, chatID, userID string) (*Chat, error) {
	query := `SELECT chat_id, user_id, title, session_type, is_voice_session, metadata,
			is_active, created_at, updated_at
		FROM chats WHERE chat_id = ? AND is_active = 1`
	args := []any{chatID}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	var (
		chat                 Chat
		metaJSON             string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&chat.ChatID, &chat.UserID, &chat.Title,
		&chat.SessionType, &chat.IsVoiceSession, &metaJSON, &chat.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fault.Storage("chat get", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &chat.Metadata); err != nil {
		return nil, fault.Storage("chat get", err)
	}
	chat.CreatedAt = parseTime(createdAt)
	chat.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx, `SELECT message_id, role, content, created_at
		FROM chat_messages WHERE chat_id = ? ORDER BY seq`, chatID)
	if err != nil {
		return nil, fault.Storage("chat get", err)
	}
	defer rows.Close()

	chat.Messages = []Message{}
	for rows.Next() {
		var (
			m  Message
			ts string
		)
		if err := rows.Scan(&m.MessageID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fault.Storage("chat get", err)
		}
		m.Timestamp = parseTime(ts)
		chat.Messages = append(chat.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storage("chat get", err)
	}
	return &chat, nil
}

// Rename changes a chat title.
func (s *Service) Rename(ctx context.Context, chatID, title, userID string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fault.Invalid("title", "title is required")
	}
	if err := validateTitle(title); err != nil {
		return err
	}
	return s.updateOwned(ctx, "chat rename", chatID, userID, `title = ?`, title)
}

// Delete soft-deletes a chat.
func (s *Service) Delete(ctx context.Context, chatID, userID string) error {
	if err := s.updateOwned(ctx, "chat delete", chatID, userID, `is_active = 0`); err != nil {
		return err
	}
	s.mu.Lock()
	for u, id := range s.active {
		if id == chatID {
			delete(s.active, u)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) updateOwned(ctx context.Context, op, chatID, userID, set string, args ...any) error {
	query := `UPDATE chats SET ` + set + `, updated_at = ? WHERE chat_id = ? AND is_active = 1`
	args = append(args, formatTime(s.now()), chatID)
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fault.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Storage(op, err)
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// VoiceMeta describes the call being saved.
type VoiceMeta struct {
	DetectedLanguage string   `json:"detectedLanguage"`
	PrimaryTopics    []string `json:"primaryTopics"`
	PatientCondition string   `json:"patientCondition"`
}

// SaveVoiceConversation stores a finished call transcript as a voice chat.
func (s *Service) SaveVoiceConversation(ctx context.Context, userID string, messages []Message, meta VoiceMeta) (*Chat, error) {
	if userID == "" {
		return nil, fault.Invalid("userId", "userId is required")
	}
	if meta.DetectedLanguage == "" {
		meta.DetectedLanguage = "english"
	}

	now := s.now()
	chat := &Chat{
		ChatID:         uuid.NewString(),
		UserID:         userID,
		Title:          VoiceCallTitle(messages, meta.PrimaryTopics),
		SessionType:    SessionTypeVoice,
		IsVoiceSession: true,
		Metadata: Metadata{
			TotalMessages:    len(messages),
			DetectedLanguage: meta.DetectedLanguage,
			PrimaryTopics:    meta.PrimaryTopics,
			PatientCondition: meta.PatientCondition,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Storage("chat save voice", err)
	}
	defer tx.Rollback()

	chat.Messages = make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		m.MessageID = uuid.NewString()
		chat.Messages = append(chat.Messages, m)
		ts := m.Timestamp
		chat.Metadata.LastMessageAt = &ts
	}
	if err := s.insertChat(ctx, tx, chat); err != nil {
		return nil, err
	}
	for i, m := range chat.Messages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_messages
			(message_id, chat_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.MessageID, chat.ChatID, i+1, m.Role, m.Content, formatTime(m.Timestamp)); err != nil {
			return nil, fault.Storage("chat save voice", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fault.Storage("chat save voice", err)
	}
	slog.Info("history: voice conversation saved", "chat_id", chat.ChatID, "messages", len(messages))
	return chat, nil
}

// ActiveChat is returned by GetOrCreateActive.
type ActiveChat struct {
	ChatID string `json:"chatId"`
	Title  string `json:"title"`
	IsNew  bool   `json:"isNew"`
}

// GetOrCreateActive returns the chat this process last opened for the
// user, or opens a new one.
func (s *Service) GetOrCreateActive(ctx context.Context, userID string) (*ActiveChat, error) {
	s.mu.Lock()
	chatID, ok := s.active[userID]
	s.mu.Unlock()

	if ok {
		chat, err := s.Get(ctx, chatID, userID)
		if err == nil {
			return &ActiveChat{ChatID: chat.ChatID, Title: chat.Title}, nil
		}
		if !errors.Is(err, ErrChatNotFound) {
			return nil, err
		}
	}

	chat, err := s.Create(ctx, userID, "", SessionTypeText)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.active[userID] = chat.ChatID
	s.mu.Unlock()
	return &ActiveChat{ChatID: chat.ChatID, Title: chat.Title, IsNew: true}, nil
}

// Stats counts the user's live chats.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	var (
		st         Stats
		lastChatAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
			COALESCE(SUM(is_voice_session), 0),
			MAX(updated_at)
		FROM chats WHERE user_id = ? AND is_active = 1`, userID).
		Scan(&st.TotalChats, &st.VoiceChats, &lastChatAt)
	if err != nil {
		return nil, fault.Storage("chat stats", err)
	}
	st.TextChats = st.TotalChats - st.VoiceChats
	if lastChatAt.Valid {
		t := parseTime(lastChatAt.String)
		st.LastChatAt = &t
	}
	return &st, nil
}

func validateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fault.Invalid("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
	return nil
}

func validateRole(role string) error {
	switch role {
	case "user", "assistant", "system":
		return nil
	}
	return fault.Invalid("role", "role must be one of user, assistant, system")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime tolerates malformed values as the zero time; rows are only
// written by this package.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		slog.Warn("history: malformed timestamp", "value", s, "err", err)
	}
	return t
}
