package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF      = regexp.MustCompile(`\r\n?`)
	reTabRuns   = regexp.MustCompile(`\t+`)
	reSpaceRuns = regexp.MustCompile(` {2,}`)
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
	reBoxNoise  = regexp.MustCompile(`(?m)^\s*[_\-=]{3,}\s*$`)
)

// Normalize cleans recognized text without destroying its line structure:
// newlines survive, runs of blank lines collapse to one, separator-art lines
// drop out entirely.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reTabRuns.ReplaceAllString(s, " ")
	s = reSpaceRuns.ReplaceAllString(s, " ")
	s = reBlankRuns.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
