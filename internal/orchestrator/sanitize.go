package orchestrator

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?i)```(?:json)?")

// SanitizeModelJSON isolates the JSON object in a model response. Code fences
// are dropped and the text is cut to the span between the first '{' and the
// last '}'. When no such span exists the fence-free text is returned as is
// and will fail to decode.
func SanitizeModelJSON(raw string) string {
	text := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
