package memory

import (
	"sync"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

const (
	// DefaultMaxTurns is the number of turns kept per text-chat user.
	DefaultMaxTurns = 10
	// DefaultContextTurns is the number of recent turns rendered into the
	// prompt.
	DefaultContextTurns = 5
)

// TrackerConfig holds configuration for the Tracker.
type TrackerConfig struct {
	// MaxTurns caps the stored transcript; oldest turns are dropped first.
	MaxTurns int
	// ContextTurns is how many of the latest turns RecentContext renders.
	ContextTurns int
}

// Tracker keeps the in-process text-chat transcripts, keyed by user.
// Transcripts are created lazily and live for the process lifetime unless
// cleared. It is safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	config      TrackerConfig
	transcripts map[string][]Turn
}

// NewTracker creates a Tracker, applying defaults to zero fields.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	return &Tracker{
		config:      cfg,
		transcripts: make(map[string][]Turn),
	}
}

// Append records a turn for userID. A zero Timestamp is set to now.
func (t *Tracker) Append(userID string, turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	turns := append(t.transcripts[userID], turn)
	if excess := len(turns) - t.config.MaxTurns; excess > 0 {
		turns = append([]Turn(nil), turns[excess:]...)
	}
	t.transcripts[userID] = turns
}

// RecentContext renders the latest ContextTurns turns as "role: content"
// lines, or "" when the user has no history.
func (t *Tracker) RecentContext(userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	turns := t.transcripts[userID]
	if n := len(turns) - t.config.ContextTurns; n > 0 {
		turns = turns[n:]
	}
	return FormatTurns(turns)
}

// History returns a copy of the user's transcript, oldest first.
func (t *Tracker) History(userID string) []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	turns := t.transcripts[userID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Clear forgets the user's transcript.
func (t *Tracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.transcripts, userID)
}

// Users returns the number of users with a stored transcript.
func (t *Tracker) Users() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.transcripts)
}

// Stats summarises a text-chat transcript.
type Stats struct {
	TotalMessages        int                     `json:"totalMessages"`
	LanguageDistribution map[detect.Language]int `json:"languageDistribution"`
	EmotionDistribution  map[detect.Emotion]int  `json:"emotionDistribution"`
	LastActivity         *time.Time              `json:"lastActivity"`
}

// Stats computes language and emotion distributions over every stored
// turn, re-classifying each turn's content.
func (t *Tracker) Stats(userID string) Stats {
	turns := t.History(userID)
	s := Stats{
		TotalMessages:        len(turns),
		LanguageDistribution: make(map[detect.Language]int),
		EmotionDistribution:  make(map[detect.Emotion]int),
	}
	for _, turn := range turns {
		s.LanguageDistribution[detect.DetectLanguage(turn.Content)]++
		s.EmotionDistribution[detect.DetectEmotion(turn.Content)]++
	}
	if len(turns) > 0 {
		last := turns[len(turns)-1].Timestamp
		s.LastActivity = &last
	}
	return s
}
