package orchestrator

import (
	"fmt"
	"strings"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
	"github.com/bdobrica/OrthoBot/internal/orthobot/memory"
)

// Generation parameters per channel.
const (
	textMaxTokens  = 150
	voiceMaxTokens = 200
	temperature    = 0.7
)

var emotionTone = map[detect.Emotion]string{
	detect.Worried:    "The user sounds worried. Reassure them calmly before anything else.",
	detect.Pain:       "The user is in pain. Acknowledge the pain first, then ask where and since when.",
	detect.Frustrated: "The user is frustrated. Validate the frustration and keep the answer practical.",
	detect.Sad:        "The user sounds low. Be gentle and encouraging.",
	detect.Hopeful:    "The user sounds hopeful. Encourage the progress they describe.",
	detect.Neutral:    "Keep a warm, friendly tone.",
}

const textPersona = `You are OrthoBot AI, a friendly and caring healthcare companion who talks naturally like a real person. You're here to help with orthopedic care and recovery, speaking both Hindi and English fluently.

CORE IDENTITY:
- Talk like a caring friend who happens to be a healthcare expert
- Be genuinely warm and conversational, not formal or robotic
- Specialized in helping people recover from orthopedic procedures
- Show real empathy and understanding like a human would`

const medicalFocus = `MEDICAL EXPERTISE FOCUS:
- Post-operative care and recovery
- Orthopedic rehabilitation exercises
- Pain management techniques
- Wound care and healing
- Mobility and physical therapy guidance
- When to contact healthcare providers
- Medication adherence support

SAFETY PROTOCOLS:
- Always include medical disclaimers when giving advice
- Recognize emergency symptoms and advise immediate medical care
- Never diagnose or prescribe medications
- Encourage professional medical consultation when needed
- Never give advice that would worsen pain, swelling or an injury`

const textFormat = `RESPONSE FORMAT:
- Keep responses VERY SHORT and conversational (1-3 sentences max)
- Ask ONE direct question about their specific problem
- Don't give explanations unless specifically asked
- Focus on understanding their issue first with follow-up questions
- Get straight to the point, no long paragraphs`

func writeLanguage(sb *strings.Builder, lang detect.Language, prefs *memory.Preferences) {
	sb.WriteString("\n\nLANGUAGE HANDLING:\n")
	fmt.Fprintf(sb, "- User is communicating in: %s\n", lang)
	fmt.Fprintf(sb, "- Respond ONLY in %s, the same language as the user\n", lang)
	if lang == detect.Hinglish {
		sb.WriteString("- Flow naturally between Hindi and English\n")
	}
	if prefs != nil {
		fmt.Fprintf(sb, "- User prefers: %s\n", prefs.PreferredLanguage)
		fmt.Fprintf(sb, "- Communication style: %s\n", prefs.CommunicationStyle)
	}
}

func writeEmotion(sb *strings.Builder, emotion detect.Emotion) {
	sb.WriteString("\nEMOTIONAL INTELLIGENCE:\n")
	fmt.Fprintf(sb, "- User's current emotional state: %s\n", emotion)
	tone, ok := emotionTone[emotion]
	if !ok {
		tone = emotionTone[detect.Neutral]
	}
	fmt.Fprintf(sb, "- %s\n", tone)
	sb.WriteString("- Acknowledge their feelings before providing guidance\n")
}

func writeKnowledge(sb *strings.Builder, knowledge string) {
	if knowledge == "" {
		return
	}
	sb.WriteString("\n\nRELEVANT KNOWLEDGE (use these facts exactly, never invent contact details):\n")
	sb.WriteString(knowledge)
}

// textSystemPrompt builds the prompt for a text-chat turn. history is the
// rendered recent transcript, knowledge the lookup context; both may be
// empty.
func textSystemPrompt(lang detect.Language, emotion detect.Emotion, history, knowledge string) string {
	var sb strings.Builder
	sb.WriteString(textPersona)
	writeLanguage(&sb, lang, nil)
	writeEmotion(&sb, emotion)
	sb.WriteString("\n")
	sb.WriteString(medicalFocus)
	sb.WriteString("\n\n")
	sb.WriteString(textFormat)
	writeKnowledge(&sb, knowledge)
	if history != "" {
		sb.WriteString("\n\nPrevious conversation context: ")
		sb.WriteString(history)
	}
	return sb.String()
}

const voicePersona = `You are OrthoBot AI, a caring healthcare companion with PERFECT MEMORY of ALL conversations during this call. You NEVER forget anything the user tells you. You are a female assistant and must use feminine forms in Hindi responses.`

const voiceRules = `CRITICAL MEMORY RULES:
- You have PERFECT RECALL of EVERYTHING said in this call
- NEVER say "I don't remember" or "I forgot"
- Reference specific details from ANY point in this conversation
- Remember names, treatments, doctors, symptoms, dates

CORE IDENTITY:
- Talk like a caring friend who knows their medical history
- Show continuity by referencing earlier parts of the call when relevant
- Specialized in orthopedic care and recovery

GENDER-SPECIFIC HINDI RESPONSES: You are a female assistant. In Hindi, always use feminine verb forms:
- "सकती हूँ" instead of "सकता हूँ"
- "बताऊंगी" instead of "बताऊंगा"
- "समझ गई" instead of "समझ गया"
- "करती हूँ" instead of "करता हूँ"`

const voiceFormat = `RESPONSE FORMAT:
- Keep responses SHORT and conversational (1-3 sentences max for voice calls)
- Ask ONE direct question about their current situation
- Be concise and natural, like talking to a friend you know well
- Do not use lists, headings or emojis; the reply is spoken aloud`

// voiceSystemPrompt builds the session-aware prompt for a voice turn.
func voiceSystemPrompt(lang detect.Language, emotion detect.Emotion, sum memory.Summary, prefs memory.Preferences, knowledge string) string {
	var sb strings.Builder
	sb.WriteString(voicePersona)

	sb.WriteString("\n\nCOMPLETE CONVERSATION MEMORY:\n")
	if sum.RecentConversation != "" {
		sb.WriteString("Recent conversation context:\n")
		sb.WriteString(sum.RecentConversation)
	} else {
		sb.WriteString("No recent conversation history.")
	}

	sb.WriteString("\n\nMEMORY CONTEXT:\n")
	if sum.CallHistory.TotalCalls > 1 {
		fmt.Fprintf(&sb, "This is call #%d with this user. Previous calls averaged %d seconds.\n",
			sum.CallHistory.TotalCalls, sum.CallHistory.AverageDuration)
	} else {
		sb.WriteString("This is the first call with this user.\n")
	}
	if len(sum.PrimaryTopics) > 0 {
		current := sum.CurrentTopic
		if current == "" {
			current = "General consultation"
		}
		fmt.Fprintf(&sb, "Previous topics discussed: %s. Current focus: %s.\n", strings.Join(sum.PrimaryTopics, ", "), current)
	} else {
		sb.WriteString("No previous conversation history.\n")
	}
	if sum.PatientCondition != "" {
		stage := sum.RecoveryStage
		if stage == "" {
			stage = "Not specified"
		}
		fmt.Fprintf(&sb, "Patient condition: %s. Recovery stage: %s.\n", sum.PatientCondition, stage)
	} else {
		sb.WriteString("Patient condition not yet established.\n")
	}
	if len(sum.RecentConcerns) > 0 {
		fmt.Fprintf(&sb, "Recent concerns: %s.\n", strings.Join(sum.RecentConcerns, ", "))
	} else {
		sb.WriteString("No specific concerns noted yet.\n")
	}
	if len(sum.LastSymptoms) > 0 {
		fmt.Fprintf(&sb, "Last discussed symptoms: %s.\n", strings.Join(sum.LastSymptoms, ", "))
	}

	sb.WriteString("\n")
	sb.WriteString(voiceRules)
	writeLanguage(&sb, lang, &prefs)
	writeEmotion(&sb, emotion)

	sb.WriteString("\nCONVERSATION STYLE:\n")
	if prefs.ResponseLength == "brief" {
		sb.WriteString("- Be concise and direct\n")
	} else {
		sb.WriteString("- Be detailed and thorough\n")
	}
	sb.WriteString("- Ask follow-up questions based on what was already said\n\n")

	sb.WriteString(medicalFocus)
	sb.WriteString("\n\n")
	sb.WriteString(voiceFormat)
	writeKnowledge(&sb, knowledge)
	return sb.String()
}
