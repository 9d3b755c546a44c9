package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/fault"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteVoiceStore keeps voice sessions in the voice_sessions table.
type SQLiteVoiceStore struct {
	db *sql.DB
}

var _ VoiceStore = (*SQLiteVoiceStore)(nil)

// NewSQLiteVoiceStore returns a store over an already migrated database.
func NewSQLiteVoiceStore(db *sql.DB) *SQLiteVoiceStore {
	return &SQLiteVoiceStore{db: db}
}

const voiceColumns = `session_id, user_id, session_type, is_active, transcript,
	session_context, preferences, stats, version, created_at, last_active_at,
	call_started_at, call_ended_at`

func (s *SQLiteVoiceStore) Create(ctx context.Context, vs *VoiceSession) error {
	vs.Version = 1
	row, err := encodeRow(vs)
	if err != nil {
		return fault.Storage("voice create", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO voice_sessions (`+voiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vs.SessionID, vs.UserID, vs.SessionType, vs.IsActive,
		row.transcript, row.context, row.preferences, row.stats,
		vs.Version, formatTime(vs.CreatedAt), formatTime(vs.LastActiveAt),
		row.callStarted, row.callEnded,
	)
	if err != nil {
		if strings.Contains(err.Error(), "voice_sessions.user_id") {
			return ErrActiveSessionExists
		}
		return fault.Storage("voice create", err)
	}
	return nil
}

func (s *SQLiteVoiceStore) Get(ctx context.Context, sessionID string) (*VoiceSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+voiceColumns+` FROM voice_sessions WHERE session_id = ?`, sessionID)
	vs, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fault.Storage("voice get", err)
	}
	return vs, nil
}

func (s *SQLiteVoiceStore) ActiveForUser(ctx context.Context, userID string) (*VoiceSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+voiceColumns+` FROM voice_sessions WHERE user_id = ? AND is_active = 1`, userID)
	vs, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fault.Storage("voice active", err)
	}
	return vs, nil
}

func (s *SQLiteVoiceStore) Update(ctx context.Context, vs *VoiceSession) error {
	row, err := encodeRow(vs)
	if err != nil {
		return fault.Storage("voice update", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE voice_sessions SET
			session_type = ?, is_active = ?, transcript = ?, session_context = ?,
			preferences = ?, stats = ?, version = version + 1, last_active_at = ?,
			call_started_at = ?, call_ended_at = ?
		WHERE session_id = ? AND version = ?`,
		vs.SessionType, vs.IsActive, row.transcript, row.context,
		row.preferences, row.stats, formatTime(vs.LastActiveAt),
		row.callStarted, row.callEnded,
		vs.SessionID, vs.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "voice_sessions.user_id") {
			return ErrActiveSessionExists
		}
		return fault.Storage("voice update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fault.Storage("voice update", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM voice_sessions WHERE session_id = ?`, vs.SessionID).Scan(&exists)
		if err != nil {
			return fault.Storage("voice update", err)
		}
		if exists == 0 {
			return ErrSessionNotFound
		}
		return ErrVersionConflict
	}
	vs.Version++
	return nil
}

func (s *SQLiteVoiceStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM voice_sessions WHERE session_id = ?`, sessionID); err != nil {
		return fault.Storage("voice delete", err)
	}
	return nil
}

func (s *SQLiteVoiceStore) ListByUser(ctx context.Context, userID string, limit int) ([]*VoiceSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voiceColumns+` FROM voice_sessions WHERE user_id = ?
		ORDER BY last_active_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fault.Storage("voice list", err)
	}
	defer rows.Close()

	var out []*VoiceSession
	for rows.Next() {
		vs, err := scanSession(rows)
		if err != nil {
			return nil, fault.Storage("voice list", err)
		}
		out = append(out, vs)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Storage("voice list", err)
	}
	return out, nil
}

func (s *SQLiteVoiceStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM voice_sessions WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fault.Storage("voice expire", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fault.Storage("voice expire", err)
	}
	return int(n), nil
}

func (s *SQLiteVoiceStore) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voice_sessions WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, fault.Storage("voice count", err)
	}
	return n, nil
}

type encodedRow struct {
	transcript, context, preferences, stats string
	callStarted, callEnded                  sql.NullString
}

func encodeRow(vs *VoiceSession) (encodedRow, error) {
	var r encodedRow
	transcript := vs.Transcript
	if transcript == nil {
		transcript = []Turn{}
	}
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&r.transcript, transcript},
		{&r.context, vs.Context},
		{&r.preferences, vs.Preferences},
		{&r.stats, vs.Stats},
	} {
		b, err := json.Marshal(f.v)
		if err != nil {
			return r, fmt.Errorf("encode session: %w", err)
		}
		*f.dst = string(b)
	}
	r.callStarted = nullTime(vs.CallStartedAt)
	r.callEnded = nullTime(vs.CallEndedAt)
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(sc rowScanner) (*VoiceSession, error) {
	var (
		vs                             VoiceSession
		transcript, sctx, prefs, stats string
		createdAt, lastActiveAt        string
		callStarted, callEnded         sql.NullString
	)
	err := sc.Scan(&vs.SessionID, &vs.UserID, &vs.SessionType, &vs.IsActive,
		&transcript, &sctx, &prefs, &stats, &vs.Version,
		&createdAt, &lastActiveAt, &callStarted, &callEnded)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src string
		dst any
	}{
		{transcript, &vs.Transcript},
		{sctx, &vs.Context},
		{prefs, &vs.Preferences},
		{stats, &vs.Stats},
	} {
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", vs.SessionID, err)
		}
	}
	if vs.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if vs.LastActiveAt, err = parseTime(lastActiveAt); err != nil {
		return nil, err
	}
	if vs.CallStartedAt, err = parseNullTime(callStarted); err != nil {
		return nil, err
	}
	if vs.CallEndedAt, err = parseNullTime(callEnded); err != nil {
		return nil, err
	}
	return &vs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
