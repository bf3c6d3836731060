package nl2sql

import (
	"regexp"
	"strings"
)

var (
	sqlFenceOpen   = regexp.MustCompile("(?i)```sql\\n?")
	bareFence      = regexp.MustCompile("```\\n?")
	leadingSQLWord = regexp.MustCompile(`^sql\n?`)
)

// StripCodeFences removes markdown code fences from a completion and a stray
// leading "sql" label line.
func StripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = sqlFenceOpen.ReplaceAllString(cleaned, "")
	cleaned = bareFence.ReplaceAllString(cleaned, "")
	cleaned = leadingSQLWord.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
