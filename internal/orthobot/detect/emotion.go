package detect

import "strings"

// Emotion is the coarse emotional tone detected in a message.
type Emotion string

const (
	Neutral    Emotion = "neutral"
	Worried    Emotion = "worried"
	Pain       Emotion = "pain"
	Frustrated Emotion = "frustrated"
	Sad        Emotion = "sad"
	Hopeful    Emotion = "hopeful"
)

// emotionKeywords is evaluated in order; the first emotion with a matching
// keyword wins.
var emotionKeywords = []struct {
	emotion  Emotion
	keywords []string
}{
	{Worried, []string{"worried", "चिंतित", "परेशान", "डर", "afraid", "scared", "anxious"}},
	{Pain, []string{"pain", "दर्द", "hurt", "ache", "सूजन", "swelling", "uncomfortable"}},
	{Frustrated, []string{"frustrated", "परेशान", "angry", "गुस्सा", "irritated", "fed up"}},
	{Sad, []string{"sad", "उदास", "depressed", "down", "low"}},
	{Hopeful, []string{"better", "बेहतर", "improving", "good", "अच्छा", "positive"}},
}

// DetectEmotion returns the first emotion whose keyword appears in the
// lowercased text, or Neutral.
func DetectEmotion(text string) Emotion {
	lower := strings.ToLower(text)
	for _, row := range emotionKeywords {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.emotion
			}
		}
	}
	return Neutral
}
