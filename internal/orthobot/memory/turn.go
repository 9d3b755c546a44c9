// Package memory holds conversational memory for both channels.
//
//   - Tracker: in-process rolling transcript per text-chat user, capped at
//     the most recent turns and lost on restart.
//   - VoiceService: persisted, call-scoped sessions whose full transcript is
//     kept for the duration of one call and deleted when the call ends.
//
// KeyedMutex serialises read-modify-write spans per user or session.
package memory

import (
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one immutable conversation entry.
type Turn struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Language  detect.Language `json:"language,omitempty"`
	Emotion   detect.Emotion  `json:"emotion,omitempty"`
}

// FormatTurns renders turns as "role: content" lines for prompt inclusion.
func FormatTurns(turns []Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Role + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}
