package orchestrator

import (
	"regexp"
	"strings"

	"github.com/bdobrica/OrthoBot/internal/orthobot/detect"
)

// incompletePatterns flag replies that were probably cut off by the token
// limit.
var incompletePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s$`),
	regexp.MustCompile(`[,;:\-–]$`),
	regexp.MustCompile(`(?i)\b(and|or|but|so|because|with|without|to|for|of|in|on|at|by|from|the|a|an|if|that|which|your|my)$`),
	regexp.MustCompile(`[a-z]$`),
}

// IsIncomplete reports whether reply looks truncated.
func IsIncomplete(reply string) bool {
	if reply == "" {
		return false
	}
	for _, re := range incompletePatterns {
		if re.MatchString(reply) {
			return true
		}
	}
	return false
}

// Finish completes a truncated reply with a localized request for more
// details. Complete replies are returned unchanged.
func Finish(reply string, lang detect.Language) string {
	if !IsIncomplete(reply) {
		return reply
	}
	trimmed := strings.TrimRight(reply, " \t\n,;:-–")
	return trimmed + "... " + localized(moreDetails, lang)
}
