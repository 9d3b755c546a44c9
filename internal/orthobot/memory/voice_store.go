package memory

import (
	"context"
	"time"
)

// VoiceStore persists voice sessions. Implementations must enforce at most
// one active session per user and reject stale updates.
type VoiceStore interface {
	// Create inserts a new session with Version 1. It returns
	// ErrActiveSessionExists when the user already has an active session.
	Create(ctx context.Context, s *VoiceSession) error
	// Get returns ErrSessionNotFound when the session does not exist.
	Get(ctx context.Context, sessionID string) (*VoiceSession, error)
	// ActiveForUser returns the user's active session or ErrSessionNotFound.
	ActiveForUser(ctx context.Context, userID string) (*VoiceSession, error)
	// Update persists s if its Version matches the stored one and then
	// increments s.Version. A mismatch yields ErrVersionConflict.
	Update(ctx context.Context, s *VoiceSession) error
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error
	// ListByUser returns up to limit sessions, most recently active first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*VoiceSession, error)
	// DeleteExpired removes sessions created before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
	// CountActive returns the number of active sessions.
	CountActive(ctx context.Context) (int, error)
}
