package memory

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

var (
	// ErrSessionNotFound is returned when a voice session does not exist
	// (never created, ended, or expired).
	ErrSessionNotFound = errors.New("memory: voice session not found")

	// ErrVersionConflict is returned by VoiceStore.Update when the stored
	// session changed since it was read.
	ErrVersionConflict = errors.New("memory: voice session version conflict")

	// ErrActiveSessionExists is returned by VoiceStore.Create when the user
	// already has an active session.
	ErrActiveSessionExists = errors.New("memory: user already has an active voice session")
)

// Session types.
const (
	SessionTypeVoiceCall = "voice_call"
	SessionTypeConvAI    = "elevenlabs_convai"
)

// maxConcerns bounds SessionContext.Concerns.
const maxConcerns = 10

// VoiceSession is the persisted, call-scoped memory of one voice call.
type VoiceSession struct {
	SessionID   string         `json:"sessionId"`
	UserID      string         `json:"userId"`
	SessionType string         `json:"sessionType"`
	IsActive    bool           `json:"isActive"`
	Transcript  []Turn         `json:"transcript"`
	Context     SessionContext `json:"sessionContext"`
	Preferences Preferences    `json:"preferences"`
	Stats       CallStats      `json:"stats"`
	// Version is incremented on every successful store update.
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastActiveAt  time.Time  `json:"lastActiveAt"`
	CallStartedAt *time.Time `json:"callStartedAt,omitempty"`
	CallEndedAt   *time.Time `json:"callEndedAt,omitempty"`
}

// SessionContext is derived from the user's messages during the call.
type SessionContext struct {
	PrimaryTopics         []string `json:"primaryTopics"`
	CurrentTopic          string   `json:"currentTopic,omitempty"`
	PatientCondition      string   `json:"patientCondition,omitempty"`
	RecoveryStage         string   `json:"recoveryStage,omitempty"`
	Concerns              []string `json:"concerns"`
	LastDiscussedSymptoms []string `json:"lastDiscussedSymptoms"`
}

// Preferences steer the voice prompt.
type Preferences struct {
	PreferredLanguage  detect.Language `json:"preferredLanguage"`
	CommunicationStyle string          `json:"communicationStyle"`
	ResponseLength     string          `json:"responseLength"`
}

// DefaultPreferences are applied to new sessions.
func DefaultPreferences() Preferences {
	return Preferences{
		PreferredLanguage:  detect.English,
		CommunicationStyle: "empathetic",
		ResponseLength:     "brief",
	}
}

// CallStats are durations in whole seconds.
type CallStats struct {
	TotalCalls          int   `json:"totalCalls"`
	TotalDuration       int64 `json:"totalDuration"`
	AverageCallDuration int64 `json:"averageCallDuration"`
	LastCallDuration    int64 `json:"lastCallDuration"`
	MessageCount        int   `json:"messageCount"`
}

// startCall marks the session active. The call counter only moves on a
// genuine new call, so repeated starts are idempotent.
func (s *VoiceSession) startCall(now time.Time) {
	if !s.IsActive {
		s.Stats.TotalCalls++
		started := now
		s.CallStartedAt = &started
	}
	s.IsActive = true
	s.LastActiveAt = now
}

// endCall closes the call and folds its duration into the running stats.
func (s *VoiceSession) endCall(now time.Time) {
	s.IsActive = false
	ended := now
	s.CallEndedAt = &ended
	if s.CallStartedAt != nil {
		d := int64(now.Sub(*s.CallStartedAt) / time.Second)
		if d < 0 {
			d = 0
		}
		s.Stats.LastCallDuration = d
		s.Stats.TotalDuration += d
		if s.Stats.TotalCalls > 0 {
			s.Stats.AverageCallDuration = s.Stats.TotalDuration / int64(s.Stats.TotalCalls)
		}
	}
}

// appendTurn adds a turn to the uncapped call transcript.
func (s *VoiceSession) appendTurn(turn Turn, now time.Time) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	s.Transcript = append(s.Transcript, turn)
	s.Stats.MessageCount++
	s.LastActiveAt = now
}

// applyExtraction merges context extracted from the latest user message.
func (s *VoiceSession) applyExtraction(x Extraction, lang detect.Language, now time.Time) {
	c := &s.Context
	if x.Topic != "" {
		if !contains(c.PrimaryTopics, x.Topic) {
			c.PrimaryTopics = append(c.PrimaryTopics, x.Topic)
		}
		c.CurrentTopic = x.Topic
	}
	if x.Condition != "" {
		c.PatientCondition = x.Condition
	}
	if x.RecoveryStage != "" {
		c.RecoveryStage = x.RecoveryStage
	}
	if len(x.Concerns) > 0 {
		merged := c.Concerns
		for _, concern := range x.Concerns {
			if !contains(merged, concern) {
				merged = append(merged, concern)
			}
		}
		if n := len(merged) - maxConcerns; n > 0 {
			merged = merged[n:]
		}
		c.Concerns = merged
	}
	if len(x.Symptoms) > 0 {
		c.LastDiscussedSymptoms = x.Symptoms
	}
	if lang != "" {
		s.Preferences.PreferredLanguage = lang
	}
	s.LastActiveAt = now
}

// Summary is the session context rendered into the voice prompt and
// returned by the session endpoints.
type Summary struct {
	PrimaryTopics      []string    `json:"primaryTopics"`
	CurrentTopic       string      `json:"currentTopic,omitempty"`
	PatientCondition   string      `json:"patientCondition,omitempty"`
	RecoveryStage      string      `json:"recoveryStage,omitempty"`
	RecentConcerns     []string    `json:"recentConcerns"`
	LastSymptoms       []string    `json:"lastSymptoms"`
	RecentConversation string      `json:"recentConversation"`
	CallHistory        CallHistory `json:"callHistory"`
}

// CallHistory is the subset of CallStats shown to the model.
type CallHistory struct {
	TotalCalls      int   `json:"totalCalls"`
	AverageDuration int64 `json:"averageDuration"`
}

// Summary renders the session context. The conversation contains the whole
// call transcript; it is never truncated mid-call.
func (s *VoiceSession) Summary() Summary {
	return Summary{
		PrimaryTopics:      nonNil(s.Context.PrimaryTopics),
		CurrentTopic:       s.Context.CurrentTopic,
		PatientCondition:   s.Context.PatientCondition,
		RecoveryStage:      s.Context.RecoveryStage,
		RecentConcerns:     nonNil(s.Context.Concerns),
		LastSymptoms:       nonNil(s.Context.LastDiscussedSymptoms),
		RecentConversation: FormatTurns(s.Transcript),
		CallHistory: CallHistory{
			TotalCalls:      s.Stats.TotalCalls,
			AverageDuration: s.Stats.AverageCallDuration,
		},
	}
}

// Extraction is the context found in one user message.
type Extraction struct {
	Topic         string
	Condition     string
	RecoveryStage string
	Concerns      []string
	Symptoms      []string
}

// topicTable is evaluated in order; the first topic with a matching
// keyword wins.
var topicTable = []struct {
	topic    string
	keywords []string
}{
	{"knee recovery", []string{"knee", "knee pain", "knee surgery", "knee replacement"}},
	{"back pain relief", []string{"back pain", "back injury", "spine", "lower back"}},
	{"shoulder rehabilitation", []string{"shoulder", "shoulder pain", "shoulder surgery"}},
	{"hip replacement care", []string{"hip", "hip replacement", "hip surgery", "hip pain"}},
	{"post-operative care", []string{"post-op", "after surgery", "post surgery", "recovery"}},
	{"exercise guidance", []string{"exercise", "workout", "physical therapy", "stretching"}},
	{"pain management", []string{"pain relief", "manage pain", "reduce pain", "medication"}},
	{"wound care", []string{"wound", "incision", "stitches", "healing", "scar"}},
}

// conditionTable maps procedure mentions to a patient condition.
var conditionTable = []struct {
	condition string
	keywords  []string
}{
	{"knee replacement recovery", []string{"knee replacement"}},
	{"hip replacement recovery", []string{"hip replacement"}},
	{"ACL reconstruction recovery", []string{"acl"}},
	{"spine surgery recovery", []string{"spine surgery", "back surgery"}},
	{"fracture recovery", []string{"fracture", "broken"}},
	{"arthritis", []string{"arthritis"}},
}

var (
	concernKeywords = []string{"worried", "concerned", "afraid", "scared", "anxious", "problem", "issue"}
	symptomKeywords = []string{"pain", "swelling", "stiffness", "numbness", "tingling", "weakness", "ache"}

	// recoveryStageRe matches "week 2", "day 10" or "3 weeks after/since/post".
	recoveryStageRe = regexp.MustCompile(`\b(?:(week|day|month)\s+(\d{1,3})|(\d{1,3})\s+(weeks?|days?|months?)\s+(?:after|since|post))\b`)
)

// ExtractContext runs the keyword matchers against a user message.
func ExtractContext(message string) Extraction {
	lower := strings.ToLower(message)
	var x Extraction

	for _, row := range topicTable {
		if containsAnySubstr(lower, row.keywords) {
			x.Topic = row.topic
			break
		}
	}
	for _, row := range conditionTable {
		if containsAnySubstr(lower, row.keywords) {
			x.Condition = row.condition
			break
		}
	}
	if m := recoveryStageRe.FindStringSubmatch(lower); m != nil {
		if m[1] != "" {
			x.RecoveryStage = m[1] + " " + m[2] + " post-op"
		} else {
			unit := strings.TrimSuffix(m[4], "s")
			x.RecoveryStage = unit + " " + m[3] + " post-op"
		}
	}
	for _, kw := range concernKeywords {
		if strings.Contains(lower, kw) {
			x.Concerns = append(x.Concerns, kw)
		}
	}
	for _, kw := range symptomKeywords {
		if strings.Contains(lower, kw) {
			x.Symptoms = append(x.Symptoms, kw)
		}
	}
	return x
}

func containsAnySubstr(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
