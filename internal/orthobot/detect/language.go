// Package detect classifies user messages by language and emotional tone.
//
// Both detectors are pure functions over the raw text and never fail; when no
// signal is found they fall back to English and Neutral respectively.
package detect

import (
	"regexp"
	"strings"
)

// Language is the detected script/language family of a message.
type Language string

const (
	English  Language = "english"
	Hindi    Language = "hindi"
	Hinglish Language = "hinglish"
)

var (
	devanagari = regexp.MustCompile(`[\x{0900}-\x{097F}]`)
	latinChar  = regexp.MustCompile(`[a-zA-Z]`)
)

// DetectLanguage classifies text:
//   - Devanagari together with Latin letters → Hinglish
//   - Devanagari only → Hindi
//   - everything else → English
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	hasDevanagari := devanagari.MatchString(text)
	hasLatin := latinChar.MatchString(text)

	switch {
	case hasDevanagari && hasLatin:
		return Hinglish
	case hasDevanagari:
		return Hindi
	default:
		return English
	}
}

// Valid reports whether l is one of the known languages.
func (l Language) Valid() bool {
	switch l {
	case English, Hindi, Hinglish:
		return true
	}
	return false
}
