package history

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var titleKeywordRe = regexp.MustCompile(`\b(pain|surgery|recovery|knee|back|shoulder|hip|exercise|therapy|medication|wound|walking|mobility)\b`)

// DefaultTitle names a chat after its creation time.
func DefaultTitle(now time.Time) string {
	return "Chat " + now.Format("2006-01-02 15:04")
}

// TitleFromMessage derives a chat title from the first message: the first
// orthopaedic keyword when present, otherwise the first four words.
func TitleFromMessage(content, role string) string {
	if role != "user" {
		return "New Chat"
	}
	if kw := titleKeywordRe.FindString(strings.ToLower(content)); kw != "" {
		return "Chat about " + kw
	}
	words := strings.Fields(content)
	if len(words) > 4 {
		words = words[:4]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > 30 {
		title = string([]rune(title)[:30]) + "..."
	}
	if title == "" {
		return "New Chat"
	}
	return title
}

// voiceIntents is scored by keyword frequency over the first user turns.
// Ties keep the earlier intent.
var voiceIntents = []struct {
	name     string
	keywords []string
}{
	{"Knee Recovery", []string{"knee", "घुटना", "knee ka dard", "knee pain", "knee surgery", "घुटने में दर्द"}},
	{"Back Pain Relief", []string{"back", "spine", "कमर", "kamar", "back pain", "कमर दर्द", "spine pain"}},
	{"Shoulder Rehabilitation", []string{"shoulder", "कंधा", "shoulder pain", "कंधे में दर्द", "shoulder surgery"}},
	{"Hip Recovery", []string{"hip", "कूल्हा", "hip pain", "hip surgery", "कूल्हे में दर्द"}},
	{"Post-Surgery Care", []string{"surgery", "operation", "post-op", "सर्जरी", "ऑपरेशन", "after surgery"}},
	{"Pain Management", []string{"pain", "दर्द", "hurt", "ache", "painful", "दुखता है"}},
	{"Exercise & Therapy", []string{"exercise", "therapy", "व्यायाम", "physiotherapy", "workout", "movement"}},
	{"Wound Care", []string{"wound", "cut", "stitches", "घाव", "bandage", "healing"}},
	{"Recovery Timeline", []string{"recovery", "heal", "time", "when", "कब तक", "ठीक होना"}},
	{"Return to Activities", []string{"work", "activity", "normal", "daily", "routine", "काम पर वापस"}},
	{"Medication Questions", []string{"medicine", "medication", "दवा", "pills", "tablet", "dose"}},
	{"Sleep & Rest", []string{"sleep", "rest", "नींद", "आराम", "sleeping", "bed rest"}},
	{"Walking & Mobility", []string{"walk", "walking", "चलना", "mobility", "move", "movement"}},
}

// intentMatchers holds one counter per keyword. Latin keywords match on
// word boundaries; RE2 boundaries are ASCII-only, so Devanagari keywords
// are counted as substrings.
var intentMatchers = func() [][]func(string) int {
	out := make([][]func(string) int, len(voiceIntents))
	for i, intent := range voiceIntents {
		for _, kw := range intent.keywords {
			out[i] = append(out[i], keywordCounter(kw))
		}
	}
	return out
}()

func keywordCounter(kw string) func(string) int {
	if isASCII(kw) {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		return func(s string) int { return len(re.FindAllStringIndex(s, -1)) }
	}
	return func(s string) int { return strings.Count(s, kw) }
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// VoiceCallTitle names a saved call after its first session topic, or
// after the best-scoring intent of the first three user messages.
func VoiceCallTitle(messages []Message, primaryTopics []string) string {
	if len(primaryTopics) > 0 {
		return "Voice Call: " + primaryTopics[0]
	}

	var userText []string
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		userText = append(userText, strings.ToLower(m.Content))
		if len(userText) == 3 {
			break
		}
	}
	text := strings.Join(userText, " ")

	best, bestScore := "Session", 0
	for i, intent := range voiceIntents {
		score := 0
		for _, count := range intentMatchers[i] {
			score += count(text)
		}
		if score > bestScore {
			best, bestScore = intent.name, score
		}
	}
	return "Voice Call: " + best
}
