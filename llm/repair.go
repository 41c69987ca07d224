package llm

import (
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON attempts to recover a JSON object from a model response that is
// not directly parseable: markdown fences, leading prose, and trailing
// commas are the common failure modes. Returns the repaired candidate; the
// caller decides whether it parses.
func RepairJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if match := fencePattern.FindStringSubmatch(s); match != nil {
		s = strings.TrimSpace(match[1])
	}

	// Cut surrounding prose down to the outermost object.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}

	s = trailingCommaPattern.ReplaceAllString(s, "$1")

	return s
}
