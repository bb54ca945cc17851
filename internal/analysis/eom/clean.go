package eom

import (
	"regexp"
	"strings"
)

// artifactPatterns lists every markup form that must never reach the transcript.
var artifactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<EOM[^>]*>`),
	regexp.MustCompile(`(?i)\[EOM[^\]]*\]`),
	regexp.MustCompile(`(?i)\[\s*(?:emotion|pause|speed|delay)\s*:[^\]]*\]`),
	regexp.MustCompile(`(?i)<\s*(?:emotion|pause|speed|delay)\s*:[^>]*>`),
	// unterminated tags cut off at the end of a reply
	regexp.MustCompile(`(?i)<EOM[^>]*$`),
	regexp.MustCompile(`(?i)\[(?:EOM|\s*(?:emotion|pause)\s*:)[^\]]*$`),
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// Clean removes all annotation markup from text, collapses whitespace runs to a
// single space and trims the ends. Clean(Clean(s)) == Clean(s) for every s.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	// Removing one tag can splice two fragments into a new one, so strip until stable.
	// Tags are replaced by a space to keep the surrounding words apart.
	text := raw
	for {
		stripped := text
		for _, pattern := range artifactPatterns {
			stripped = pattern.ReplaceAllString(stripped, " ")
		}
		if stripped == text {
			break
		}
		text = stripped
	}

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
