package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

// Share types.
const (
	ShareFullChat      = "full_chat"
	ShareSingleMessage = "single_message"
)

// DefaultShareTTL is how long a shared link stays readable.
const DefaultShareTTL = 30 * 24 * time.Hour

// ErrShareNotFound is returned for unknown or expired share links.
var ErrShareNotFound = errors.New("history: shared chat not found or expired")

// SharedMessage is a message as the web client renders it. Type is "user"
// or "bot".
type SharedMessage struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ShareRequest describes what to publish. Messages is used for full_chat,
// SingleMessage for single_message.
type ShareRequest struct {
	ShareType     string          `json:"shareType"`
	Title         string          `json:"title"`
	Messages      []SharedMessage `json:"messages"`
	SingleMessage *SharedMessage  `json:"singleMessage"`
}

// SharedChat is a published snapshot.
type SharedChat struct {
	ShareID       string          `json:"shareId"`
	ShareType     string          `json:"shareType"`
	Title         string          `json:"title"`
	Messages      []SharedMessage `json:"messages,omitempty"`
	SingleMessage *SharedMessage  `json:"singleMessage,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ViewCount     int             `json:"viewCount"`
	ExpiresAt     time.Time       `json:"-"`
}

func (req *ShareRequest) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	if req.ShareType == "" || req.Title == "" {
		return fault.Invalid("shareType", "Missing required fields: shareType and title")
	}
	if err := validateTitle(req.Title); err != nil {
		return err
	}
	switch req.ShareType {
	case ShareFullChat:
		if req.Messages == nil {
			return fault.Invalid("messages", "Messages array is required for full_chat sharing")
		}
		for _, m := range req.Messages {
			if err := validateSharedType(m.Type); err != nil {
				return err
			}
		}
	case ShareSingleMessage:
		if req.SingleMessage == nil {
			return fault.Invalid("singleMessage", "Single message is required for single_message sharing")
		}
		return validateSharedType(req.SingleMessage.Type)
	default:
		return fault.Invalid("shareType", "shareType must be full_chat or single_message")
	}
	return nil
}

func validateSharedType(typ string) error {
	if typ != "user" && typ != "bot" {
		return fault.Invalid("type", "message type must be user or bot")
	}
	return nil
}

// Share publishes a snapshot under a fresh share ID. Only the part matching
// the share type is stored.
func (s *Service) Share(ctx context.Context, req ShareRequest) (*SharedChat, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	sc := &SharedChat{
		ShareID:   uuid.NewString(),
		ShareType: req.ShareType,
		Title:     req.Title,
		CreatedAt: now,
		ExpiresAt: now.Add(s.shareTTL),
	}
	var messages, single sql.NullString
	if req.ShareType == ShareFullChat {
		sc.Messages = req.Messages
		b, err := json.Marshal(req.Messages)
		if err != nil {
			return nil, fault.Storage("chat share", err)
		}
		messages = sql.NullString{String: string(b), Valid: true}
	} else {
		sc.SingleMessage = req.SingleMessage
		b, err := json.Marshal(req.SingleMessage)
		if err != nil {
			return nil, fault.Storage("chat share", err)
		}
		single = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO shared_chats
		(share_id, share_type, title, messages, single_message, view_count, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		sc.ShareID, sc.ShareType, sc.Title, messages, single,
		formatTime(now), formatTime(now), formatTime(sc.ExpiresAt))
	if err != nil {
		return nil, fault.Storage("chat share", err)
	}
	slog.Info("history: chat shared", "share_id", sc.ShareID, "share_type", sc.ShareType)
	return sc, nil
}

// ViewShared returns a live snapshot and counts the view.
func (s *Service) ViewShared(ctx context.Context, shareID string) (*SharedChat, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fault.Storage("chat share view", err)
	}
	defer tx.Rollback()

	var (
		sc                   SharedChat
		messages, single     sql.NullString
		createdAt, expiresAt string
	)
	err = tx.QueryRowContext(ctx, `SELECT share_id, share_type, title, messages, single_message,
			view_count, created_at, expires_at
		FROM shared_chats WHERE share_id = ? AND expires_at > ?`, shareID, formatTime(now)).
		Scan(&sc.ShareID, &sc.ShareType, &sc.Title, &messages, &single, &sc.ViewCount, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fault.Storage("chat share view", err)
	}
	if messages.Valid {
		if err := json.Unmarshal([]byte(messages.String), &sc.Messages); err != nil {
			return nil, fault.Storage("chat share view", err)
		}
	}
	if single.Valid {
		sc.SingleMessage = &SharedMessage{}
		if err := json.Unmarshal([]byte(single.String), sc.SingleMessage); err != nil {
			return nil, fault.Storage("chat share view", err)
		}
	}
	sc.CreatedAt = parseTime(createdAt)
	sc.ExpiresAt = parseTime(expiresAt)

	if _, err := tx.ExecContext(ctx,
		`UPDATE shared_chats SET view_count = view_count + 1, updated_at = ? WHERE share_id = ?`,
		formatTime(now), shareID); err != nil {
		return nil, fault.Storage("chat share view", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fault.Storage("chat share view", err)
	}
	sc.ViewCount++
	return &sc, nil
}

// PurgeExpiredShares deletes snapshots whose link has expired at now.
func (s *Service) PurgeExpiredShares(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shared_chats WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fault.Storage("chat share purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fault.Storage("chat share purge", err)
	}
	return int(n), nil
}
