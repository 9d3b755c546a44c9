package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

const (
	// DefaultListLimit is the number of sessions ListByUser returns by default.
	DefaultListLimit = 10

	// maxUpdateAttempts bounds retries on ErrVersionConflict.
	maxUpdateAttempts = 3
)

// VoiceConfig holds configuration for the VoiceService.
type VoiceConfig struct {
	// MaxAge is the safety-net lifetime of a session; older sessions are
	// deleted by CleanupExpired. Defaults to DefaultSessionMaxAge.
	MaxAge time.Duration
}

// VoiceService manages the lifecycle of call-scoped voice sessions.
// Session memory never outlives the call: EndCall deletes the record.
type VoiceService struct {
	store  VoiceStore
	maxAge time.Duration
	locks  KeyedMutex
	now    func() time.Time
}

// NewVoiceService creates a VoiceService over store.
func NewVoiceService(store VoiceStore, cfg VoiceConfig) *VoiceService {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSessionMaxAge
	}
	return &VoiceService{
		store:  store,
		maxAge: cfg.MaxAge,
		now:    time.Now,
	}
}

// SessionLock serialises work on one session. Message handling and EndCall
// both take it, so a call cannot end halfway through a turn.
func (v *VoiceService) SessionLock(sessionID string) (unlock func()) {
	return v.locks.Lock("voice:" + sessionID)
}

// StartResult is returned by StartCall.
type StartResult struct {
	SessionID    string      `json:"sessionId"`
	IsNewSession bool        `json:"isNewSession"`
	Context      Summary     `json:"context"`
	Preferences  Preferences `json:"preferences"`
}

// StartCall returns the user's active session or opens a new one. Calling
// it again during a live call changes nothing.
func (v *VoiceService) StartCall(ctx context.Context, userID, sessionType string) (*StartResult, error) {
	vs, created, err := v.ensureActive(ctx, userID, sessionType)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("memory: voice call started", "session_id", vs.SessionID, "user_id", userID)
	}
	return &StartResult{
		SessionID:    vs.SessionID,
		IsNewSession: created,
		Context:      vs.Summary(),
		Preferences:  vs.Preferences,
	}, nil
}

// EnsureActive returns the user's active session, creating one if needed.
func (v *VoiceService) EnsureActive(ctx context.Context, userID string) (*VoiceSession, error) {
	vs, _, err := v.ensureActive(ctx, userID, SessionTypeVoiceCall)
	return vs, err
}

// Load returns the session with the given ID. When it is unknown and
// userID is set, the user's active session is used instead (or created).
func (v *VoiceService) Load(ctx context.Context, sessionID, userID string) (*VoiceSession, error) {
	if sessionID != "" {
		vs, err := v.store.Get(ctx, sessionID)
		if err == nil {
			return vs, nil
		}
		if !errors.Is(err, ErrSessionNotFound) || userID == "" {
			return nil, err
		}
	}
	if userID == "" {
		return nil, ErrSessionNotFound
	}
	return v.EnsureActive(ctx, userID)
}

func (v *VoiceService) ensureActive(ctx context.Context, userID, sessionType string) (*VoiceSession, bool, error) {
	if sessionType == "" {
		sessionType = SessionTypeVoiceCall
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		vs, err := v.store.ActiveForUser(ctx, userID)
		if err == nil {
			return vs, false, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, false, err
		}

		now := v.now()
		vs = &VoiceSession{
			SessionID:    fmt.Sprintf("voice_%s_%d", userID, now.UnixMilli()),
			UserID:       userID,
			SessionType:  sessionType,
			Preferences:  DefaultPreferences(),
			CreatedAt:    now,
			LastActiveAt: now,
		}
		vs.startCall(now)

		err = v.store.Create(ctx, vs)
		if err == nil {
			return vs, true, nil
		}
		// Another request opened the user's session first; pick it up.
		if !errors.Is(err, ErrActiveSessionExists) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("memory: start call for %s: %w", userID, ErrActiveSessionExists)
}

// mutate applies fn to a fresh copy of the session and persists it,
// retrying on version conflicts.
func (v *VoiceService) mutate(ctx context.Context, sessionID string, fn func(*VoiceSession, time.Time)) (*VoiceSession, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		vs, err := v.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		fn(vs, v.now())
		err = v.store.Update(ctx, vs)
		if err == nil {
			return vs, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("memory: update session %s: %w", sessionID, lastErr)
}

// AppendTurn adds one turn to the call transcript.
func (v *VoiceService) AppendTurn(ctx context.Context, sessionID string, turn Turn) error {
	_, err := v.mutate(ctx, sessionID, func(vs *VoiceSession, now time.Time) {
		vs.appendTurn(turn, now)
	})
	return err
}

// UpdateDerivedContext runs context extraction on a user message and
// merges the result into the session.
func (v *VoiceService) UpdateDerivedContext(ctx context.Context, sessionID, message string, lang detect.Language) error {
	x := ExtractContext(message)
	_, err := v.mutate(ctx, sessionID, func(vs *VoiceSession, now time.Time) {
		vs.applyExtraction(x, lang, now)
	})
	return err
}

// RecordExchange appends a user turn and the assistant reply, updates the
// derived context in a single write and returns the stored session.
func (v *VoiceService) RecordExchange(ctx context.Context, sessionID string, user, assistant Turn) (*VoiceSession, error) {
	x := ExtractContext(user.Content)
	return v.mutate(ctx, sessionID, func(vs *VoiceSession, now time.Time) {
		vs.appendTurn(user, now)
		vs.appendTurn(assistant, now)
		vs.applyExtraction(x, user.Language, now)
	})
}

// RecentContext returns the session summary including the whole call
// transcript.
func (v *VoiceService) RecentContext(ctx context.Context, sessionID string) (Summary, error) {
	vs, err := v.store.Get(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return vs.Summary(), nil
}

// EndResult is returned by EndCall.
type EndResult struct {
	SessionID  string `json:"sessionId"`
	Duration   int64  `json:"duration"`
	TotalCalls int    `json:"totalCalls"`
}

// EndCall closes the call and deletes the session with its transcript.
// Ending an unknown or already ended session reports ok=false and no error.
func (v *VoiceService) EndCall(ctx context.Context, sessionID string) (res *EndResult, ok bool, err error) {
	unlock := v.SessionLock(sessionID)
	defer unlock()

	vs, err := v.store.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	vs.endCall(v.now())
	if err := v.store.Delete(ctx, sessionID); err != nil {
		return nil, false, err
	}
	slog.Info("memory: voice call ended",
		"session_id", sessionID,
		"duration_s", vs.Stats.LastCallDuration,
		"messages", vs.Stats.MessageCount,
	)
	return &EndResult{
		SessionID:  sessionID,
		Duration:   vs.Stats.LastCallDuration,
		TotalCalls: vs.Stats.TotalCalls,
	}, true, nil
}

// SessionInfo describes a live session.
type SessionInfo struct {
	SessionID    string      `json:"sessionId"`
	UserID       string      `json:"userId"`
	IsActive     bool        `json:"isActive"`
	Context      Summary     `json:"context"`
	Preferences  Preferences `json:"preferences"`
	Stats        CallStats   `json:"stats"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActiveAt time.Time   `json:"lastActiveAt"`
}

// Info returns ErrSessionNotFound for unknown sessions.
func (v *VoiceService) Info(ctx context.Context, sessionID string) (*SessionInfo, error) {
	vs, err := v.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		SessionID:    vs.SessionID,
		UserID:       vs.UserID,
		IsActive:     vs.IsActive,
		Context:      vs.Summary(),
		Preferences:  vs.Preferences,
		Stats:        vs.Stats,
		CreatedAt:    vs.CreatedAt,
		LastActiveAt: vs.LastActiveAt,
	}, nil
}

// SessionListing is one entry of ListByUser.
type SessionListing struct {
	SessionID     string    `json:"sessionId"`
	SessionType   string    `json:"sessionType"`
	PrimaryTopics []string  `json:"primaryTopics"`
	TotalCalls    int       `json:"totalCalls"`
	TotalDuration int64     `json:"totalDuration"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
}

// ListByUser returns the user's sessions, most recently active first.
func (v *VoiceService) ListByUser(ctx context.Context, userID string, limit int) ([]SessionListing, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	sessions, err := v.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionListing, 0, len(sessions))
	for _, vs := range sessions {
		out = append(out, SessionListing{
			SessionID:     vs.SessionID,
			SessionType:   vs.SessionType,
			PrimaryTopics: nonNil(vs.Context.PrimaryTopics),
			TotalCalls:    vs.Stats.TotalCalls,
			TotalDuration: vs.Stats.TotalDuration,
			CreatedAt:     vs.CreatedAt,
			LastActiveAt:  vs.LastActiveAt,
		})
	}
	return out, nil
}

// Transcript returns the call transcript in append order.
func (v *VoiceService) Transcript(ctx context.Context, sessionID string) ([]Turn, error) {
	vs, err := v.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return vs.Transcript, nil
}

// Session returns the raw session record.
func (v *VoiceService) Session(ctx context.Context, sessionID string) (*VoiceSession, error) {
	return v.store.Get(ctx, sessionID)
}

// CleanupExpired deletes sessions older than MaxAge and returns how many
// were removed.
func (v *VoiceService) CleanupExpired(ctx context.Context) (int, error) {
	n, err := v.store.DeleteExpired(ctx, v.now().Add(-v.maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("memory: expired voice sessions removed", "count", n)
	}
	return n, nil
}

// ActiveSessions returns the number of live calls.
func (v *VoiceService) ActiveSessions(ctx context.Context) (int, error) {
	return v.store.CountActive(ctx)
}
