package orchestrator

import (
	"strings"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

// WelcomeText answers a bare greeting on the main endpoint.
const WelcomeText = "Hi! 👋 I'm OrthoBot AI, your friendly assistant for orthopedic recovery and physiotherapy guidance. " +
	"I'm here to help you with exercises, pain management, rehabilitation tips, and recovery advice. " +
	"What would you like to know about your recovery journey? 😊"

var greetings = map[detect.Language]string{
	detect.Hindi:    "हैलो! मैं OrthoBot हूं। मैं आपकी orthopedic recovery में help करने के लिए यहां हूं। आपको क्या problem है?",
	detect.Hinglish: "हैलो! मैं OrthoBot हूं। मैं आपकी orthopedic recovery में help करने के लिए यहां हूं। आपको क्या problem है?",
	detect.English: "Hello! I'm OrthoBot AI, your orthopedic recovery assistant. " +
		"I'm here to help you with your post-operative recovery journey. What can I help you with today?",
}

var apologies = map[detect.Language]string{
	detect.Hindi:    "माफ करें, मुझे कुछ तकनीकी समस्या हो रही है। कृपया थोड़ी देर बाद कोशिश करें।",
	detect.Hinglish: "Sorry, mujhe kuch technical problem ho rahi hai. Please thoda wait karke try kijiye.",
	detect.English:  "I'm sorry, I'm experiencing some technical difficulties. Please try again in a moment.",
}

var rateLimited = map[detect.Language]string{
	detect.Hindi:    "आप बहुत जल्दी-जल्दी संदेश भेज रहे हैं। कृपया एक मिनट रुककर फिर से कोशिश करें।",
	detect.Hinglish: "Aap bahut jaldi messages bhej rahe hain. Please ek minute ruk kar phir try kijiye.",
	detect.English:  "You're sending messages too quickly. Please wait a minute and try again.",
}

var moreDetails = map[detect.Language]string{
	detect.Hindi:    "क्या आप थोड़ा और विस्तार से बता सकते हैं ताकि मैं आपकी बेहतर मदद कर सकूँ?",
	detect.Hinglish: "Kya aap thoda aur detail mein bata sakte hain taaki main aapki better help kar sakun?",
	detect.English:  "Could you share a few more details so I can help you better?",
}

func localized(table map[detect.Language]string, lang detect.Language) string {
	if s, ok := table[lang]; ok {
		return s
	}
	return table[detect.English]
}

// Greeting returns the localized welcome used by the greeting endpoint.
// Unknown languages get English.
func Greeting(lang detect.Language) string { return localized(greetings, lang) }

// Apology is the canned reply used when the model cannot answer.
func Apology(lang detect.Language) string { return localized(apologies, lang) }

// RateLimitMessage is returned when a user exceeds the request quota.
func RateLimitMessage(lang detect.Language) string { return localized(rateLimited, lang) }

var casualGreetings = []string{
	"hi", "hello", "hey", "hii", "helo", "namaste", "नमस्ते", "hola",
	"good morning", "good evening", "good afternoon",
}

// maxGreetingWords caps how long a message may be and still count as a
// salutation.
const maxGreetingWords = 4

// IsGreeting reports whether message is a bare salutation: a greeting on
// its own, followed by "!" or ".", or at either end of a message of at
// most maxGreetingWords words.
func IsGreeting(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	if len(strings.Fields(msg)) > maxGreetingWords {
		return false
	}
	for _, g := range casualGreetings {
		if msg == g ||
			strings.HasPrefix(msg, g+" ") ||
			strings.HasSuffix(msg, " "+g) ||
			msg == g+"!" ||
			msg == g+"." {
			return true
		}
	}
	return false
}
