// Package safety refuses requests that ask how to deliberately worsen an
// injury, before any quota, cache or LLM work is done for them.
package safety

import (
	"strings"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

// harmfulPhrases is the canonical deny-list shared by the text and voice
// channels. Matching is a case-insensitive substring test.
var harmfulPhrases = []string{
	// English
	"increase knee pain",
	"increase my knee pain",
	"make knee hurt more",
	"make my knee hurt more",
	"increase pain",
	"increase my pain",
	"hurt more",
	"make it worse",
	"make my knee worse",
	"increase swelling",
	"increase inflammation",
	// Devanagari
	"बढ़ाना घुटने का दर्द",
	"घुटने में ज्यादा दर्द करना",
	"दर्द बढ़ाना",
	"और दर्द करना",
	"और खराब करना",
	"सूजन बढ़ाना",
	// Romanised Hindi
	"badhana ghutne ka dard",
	"ghutne mein zyada dard karna",
	"dard badhana",
	"aur dard karna",
	"aur kharab karna",
	"sujan badhana",
}

var refusals = map[detect.Language]string{
	detect.Hindi: "मैं आपको ऐसा करने की सलाह नहीं दे सकती! घुटने में दर्द को बढ़ाना स्वास्थ्य के लिए हानिकारक हो सकता है। " +
		"क्या आपको घुटने के दर्द के कारण के बारे में जानना है? या फिर घुटने के दर्द को कम करने के लिए कुछ सलाह चाहिए?",
	detect.Hinglish: "Main aapko aisa karne ki salah nahi de sakti! Ghutne ka dard badhana aapki health ke liye harmful ho sakta hai. " +
		"Kya aap knee pain ke causes ke baare mein jaanna chahte hain? Ya phir pain kam karne ke liye kuch tips chahiye?",
	detect.English: "I cannot advise you to do that! Increasing knee pain can be harmful to your health. " +
		"Do you want to know about the causes of knee pain? Or do you need some advice to reduce knee pain?",
}

// Interceptor checks inbound queries against the deny-list.
type Interceptor struct {
	phrases []string
}

// New returns an Interceptor over the built-in phrase table plus any extra
// phrases (already lowercase or not; they are normalised here).
func New(extra ...string) *Interceptor {
	phrases := make([]string, 0, len(harmfulPhrases)+len(extra))
	for _, p := range append(append([]string(nil), harmfulPhrases...), extra...) {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Interceptor{phrases: phrases}
}

// Check returns the localized refusal and true when text expresses intent to
// worsen a condition. lang selects the refusal language.
func (i *Interceptor) Check(text string, lang detect.Language) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range i.phrases {
		if strings.Contains(lower, p) {
			return Refusal(lang), true
		}
	}
	return "", false
}

// Refusal returns the canned refusal for lang, defaulting to English.
func Refusal(lang detect.Language) string {
	if r, ok := refusals[lang]; ok {
		return r
	}
	return refusals[detect.English]
}
