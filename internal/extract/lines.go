package extract

import (
	"regexp"
	"strings"
)

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	reNumStrip = regexp.MustCompile(`[^0-9.]+`)
)

// Lines splits recognized text into trimmed, non-empty lines with runs of
// whitespace collapsed to single spaces. All matchers operate on this view.
func Lines(text string) []string {
	raw := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(raw))
	for _, line := range raw {
		compact := strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
		if compact != "" {
			cleaned = append(cleaned, compact)
		}
	}
	return cleaned
}

// normalizeForMatch folds a line down to its lowercase alphanumerics.
func normalizeForMatch(s string) string {
	return reAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// NormalizeNumeric case-folds and strips every character except digits and
// '.'. Both a line and a needle value go through this before comparing, so
// "Total: $12.34" and "12.34" meet in the middle.
func NormalizeNumeric(s string) string {
	return reNumStrip.ReplaceAllString(strings.ToLower(s), "")
}

// FindLineWithValue locates the first line whose numeric content contains the
// given known value. This is the reverse mode of the extractor: given a
// corrected total, find the source line it came from.
func FindLineWithValue(lines []string, needle string) (int, bool) {
	want := NormalizeNumeric(needle)
	if want == "" {
		return -1, false
	}
	for i, line := range lines {
		if strings.Contains(NormalizeNumeric(line), want) {
			return i, true
		}
	}
	return -1, false
}

// digitFixes repairs the usual OCR letter/digit confusions before numeric
// token parsing. Applied only where numbers are being read, never to the
// text that ends up stored.
var digitFixes = strings.NewReplacer(
	"O", "0", "o", "0",
	"I", "1", "l", "1",
	"S", "5",
	"B", "8",
)

func normalizeDigits(s string) string {
	return digitFixes.Replace(s)
}
